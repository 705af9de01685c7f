// Package saga 按顺序执行多个本地事务，失败时逆序补偿
//
// 每个Step由正向操作和补偿操作组成。某一步失败（或超时）时，
// 已成功的步骤按逆序执行补偿，补偿失败不会中断后续补偿。
//
// 示例：
//
//	s := saga.New(30*time.Second, log)
//	s.AddStep("出库 book_id=1", sell, undoSell)
//	s.AddStep("出库 book_id=2", sell2, undoSell2)
//	err := s.Execute(ctx)
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step Saga中的一个步骤
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error // 可以为nil
}

// Saga 一次Saga事务，不可重复执行
type Saga struct {
	steps   []Step
	timeout time.Duration
	log     *zap.Logger
}

// New 创建Saga，timeout<=0表示不限制整体耗时
func New(timeout time.Duration, log *zap.Logger) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saga{timeout: timeout, log: log}
}

// AddStep 追加步骤，按添加顺序执行，按逆序补偿
func (s *Saga) AddStep(name string, action, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, Step{Name: name, Action: action, Compensate: compensate})
}

// StepError 某一步失败
// Err是失败原因，CompensateErr汇总了补偿阶段的错误（全部补偿成功时为nil）
type StepError struct {
	Index         int
	Step          string
	Err           error
	CompensateErr error
}

func (e *StepError) Error() string {
	if e.CompensateErr != nil {
		return fmt.Sprintf("步骤[%d:%s]执行失败: %v（补偿失败: %v）", e.Index, e.Step, e.Err, e.CompensateErr)
	}
	return fmt.Sprintf("步骤[%d:%s]执行失败: %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Compensated 已执行的步骤是否全部补偿成功
func (e *StepError) Compensated() bool { return e.CompensateErr == nil }

// Execute 执行全部步骤，失败时返回*StepError
func (s *Saga) Execute(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, step := range s.steps {
		err := ctx.Err()
		if err == nil && step.Action != nil {
			err = step.Action(ctx)
		}
		if err != nil {
			return &StepError{
				Index:         i,
				Step:          step.Name,
				Err:           err,
				CompensateErr: s.compensate(ctx, i),
			}
		}
	}

	return nil
}

// compensate 逆序补偿前executed个步骤
// 使用不随ctx取消的Context，超时触发的补偿仍能执行
func (s *Saga) compensate(ctx context.Context, executed int) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := executed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.log.Error("补偿失败，需要人工处理", zap.String("step", step.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		s.log.Info("补偿完成", zap.String("step", step.Name))
	}
	return errors.Join(errs...)
}
