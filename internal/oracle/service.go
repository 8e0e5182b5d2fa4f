package oracle

import (
	"context"
	"fmt"

	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/pkg/ratelimit"
)

// Service 在 Client 外再包一层熔断与限速，所有 LLM 调用共用。
type Service struct {
	client  Client
	breaker *circuit.Breaker
	limiter *ratelimit.SlidingWindow
}

func NewService(client Client, breaker *circuit.Breaker, limiter *ratelimit.SlidingWindow) *Service {
	return &Service{client: client, breaker: breaker, limiter: limiter}
}

// Available reports whether a call can be attempted at all.
func (s *Service) Available() bool {
	return s != nil && s.client != nil
}

// Ask 调用 oracle 并解析结构化裁决。熔断打开或解析失败都会返回错误，
// 由调用方走各自的降级路径。
func (s *Service) Ask(ctx context.Context, system, user string) (Verdict, error) {
	if !s.Available() {
		return Verdict{}, fmt.Errorf("%w: no client configured", ErrUnavailable)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Verdict{}, err
		}
	}
	var raw string
	call := func() error {
		var cerr error
		raw, cerr = s.client.Complete(ctx, system, user)
		return cerr
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	verdict, perr := ParseVerdict(raw)
	if perr != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, perr)
	}
	return verdict, nil
}
