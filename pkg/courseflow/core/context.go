package core

type ctxKey string

const (
	CtxKeyWorkerID ctxKey = ctxKey("workerId")
	CtxKeyCaller   ctxKey = ctxKey("caller")
)
