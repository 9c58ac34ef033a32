package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/repository"
)

// DefaultTxMaxAttempts 事务体最多执行的次数 (含第一次)
const DefaultTxMaxAttempts = 5

// txRunner 把 RoomStore.RunInTx 包装成带指数退避的重试循环。
// 只有 ErrTxConflict 会重试，业务错误和其他存储错误立即返回。
type txRunner struct {
	store       repository.RoomStore
	maxAttempts int
}

func newTxRunner(store repository.RoomStore, maxAttempts int) txRunner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultTxMaxAttempts
	}
	return txRunner{store: store, maxAttempts: maxAttempts}
}

func (r txRunner) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 10 * time.Millisecond
	exp.MaxInterval = 250 * time.Millisecond
	exp.MaxElapsedTime = 0 // 由次数限制
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.maxAttempts-1)), ctx)
}

// run 执行 fn，fn 可能被执行多次，因此 fn 的输出变量必须在每次执行时重新赋值。
func (r txRunner) run(ctx context.Context, logCtx *logrus.Entry, fn func(tx repository.RoomTx) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := r.store.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrTxConflict) {
			logCtx.WithError(err).WithField("attempt", attempt).Debug("Transaction conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, r.newBackOff(ctx))
}
