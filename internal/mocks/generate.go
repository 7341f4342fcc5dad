package mocks

// Mock generation directives. Run `go generate ./internal/mocks/` to regenerate.

//go:generate go run go.uber.org/mock/mockgen -source=../cache/interface.go -destination=mock_cache.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=../metrics/metrics.go -destination=mock_recorder.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=../metrics/cache.go -destination=mock_metrics_store.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=../token/types.go -destination=mock_token.go -package=mocks
