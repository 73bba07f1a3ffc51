package importer

import (
	"fmt"

	"pilotage/internal/model"
)

// Current 当前会话的加载结果；会话停止或尚未加载时返回 false
func (c *Coordinator) Current() (*LoadResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current != nil
}

// LastError 最近一次失败加载的错误；成功加载后清空
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Halted 是否因没有可用的源而停止提供数据
func (c *Coordinator) Halted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

// State 会话状态快照
func (c *Coordinator) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := SessionState{Loaded: c.current != nil, Halted: c.halted}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if c.current != nil {
		st.Report = c.current.Report
	}
	return st
}

// Table 从当前会话取逻辑表
//
// 会话停止时返回包装了 ErrNoInput 的错误；源中没有该 sheet 时返回 ErrTableAbsent。
func (c *Coordinator) Table(key model.LogicalKey) (*model.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.halted {
		if c.lastErr != nil {
			return nil, c.lastErr
		}
		return nil, ErrNoInput
	}
	if c.current == nil {
		return nil, ErrNotLoaded
	}
	t, ok := c.current.Table(key)
	if !ok {
		name, _ := model.SheetNameOf(key)
		return nil, fmt.Errorf("%w: sheet %s not in source", ErrTableAbsent, name)
	}
	return t, nil
}
