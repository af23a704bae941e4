package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameTransport = "transport"
	FieldNameSession   = "sessionID"
	FieldNameRemote    = "remote"
	FieldNameUsername  = "username"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

func FieldTransport(transport string) zap.Field {
	return zap.String(FieldNameTransport, transport)
}

func FieldSession(id uint64) zap.Field {
	return zap.Uint64(FieldNameSession, id)
}

func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}

func FieldUsername(username string) zap.Field {
	return zap.String(FieldNameUsername, username)
}
