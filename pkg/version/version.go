package version

import (
	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
)

// 以下变量在构建时通过 -ldflags "-X" 注入。
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Get 解析当前构建版本。
func Get() (semver.Version, error) {
	v, err := semver.ParseTolerant(Version)
	if err != nil {
		return semver.Version{}, errors.Wrapf(err, "invalid build version %q", Version)
	}
	return v, nil
}

// String 返回规范化后的版本号；解析失败时原样返回注入值。
func String() string {
	v, err := Get()
	if err != nil {
		return Version
	}
	return v.String()
}
