// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	chatNamespace = "chat"

	// 以下为当前使用的通用标签名。
	transportLabelName = "transport"
	commandLabelName   = "command"
	resultLabelName    = "result"
	reasonLabelName    = "reason"
	versionLabelName   = "version"
	commitLabelName    = "commit"

	// result 标签的取值。
	SuccessLabel = "ok"
	FailLabel    = "fail"
)

var (
	// buckets 为命令处理耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [0.05 0.1 0.2 0.4 0.8 1.6 3.2 6.4 12.8 25.6 51.2 102.4 204.8 409.6 819.2 1638.4]
	buckets = prometheus.ExponentialBuckets(0.05, 2, 16)

	SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "sessions_active",
			Help:      "number of open stream connections",
		}, []string{transportLabelName})

	ConnectionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "connections_accepted_total",
			Help:      "number of accepted stream connections",
		}, []string{transportLabelName})

	RegisteredUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "registered_users",
			Help:      "number of logged in usernames across all transports",
		})

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "commands_total",
			Help:      "number of handled commands",
		}, []string{transportLabelName, commandLabelName, resultLabelName})

	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: chatNamespace,
			Name:      "command_latency",
			Help:      "latency of command handling in milliseconds",
			Buckets:   buckets,
		}, []string{transportLabelName, commandLabelName})

	RoutedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "routed_messages_total",
			Help:      "number of chat messages delivered to another user",
		}, []string{transportLabelName})

	DatagramsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "datagrams_dropped_total",
			Help:      "number of datagrams dropped before handling",
		}, []string{reasonLabelName})

	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "build_info",
			Help:      "build information of the running server",
		}, []string{versionLabelName, commitLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 将当前定义的所有指标注册到 r。
// 同一组指标可以注册到多个 Registry。
func Register(r prometheus.Registerer) {
	r.MustRegister(SessionsActive)
	r.MustRegister(ConnectionsAccepted)
	r.MustRegister(RegisteredUsers)
	r.MustRegister(CommandsTotal)
	r.MustRegister(CommandLatency)
	r.MustRegister(RoutedMessagesTotal)
	r.MustRegister(DatagramsDropped)
	r.MustRegister(BuildInfo)
	metricRegisterer = r
}
