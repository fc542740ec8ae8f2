package engine

import (
	"errors"
	"fmt"
)

// State 引擎生命周期状态
type State int

const (
	// StateInitializing 构造完成、尚未预热
	StateInitializing State = iota
	// StateRunning 运行状态
	StateRunning
	// StatePaused 暂停状态（循环保留，周期跳过）
	StatePaused
	// StateStopping 停止中，等待在途周期完成
	StateStopping
	// StateStopped 已停止，可再次 Start
	StateStopped
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ErrIllegalTransition 非法的生命周期转换
var ErrIllegalTransition = errors.New("engine: illegal state transition")

type transition struct {
	From State
	To   State
}

// 合法转换表。错误不是状态：周期失败留在 RUNNING，仅发 ERROR 事件。
var legalTransitions = map[transition]bool{
	{StateInitializing, StateStopped}: true, // Initialize 完成
	{StateStopped, StateRunning}:      true, // Start
	{StateRunning, StatePaused}:       true, // Pause
	{StatePaused, StateRunning}:       true, // Resume
	{StateRunning, StateStopping}:     true, // Stop / stop-loss
	{StatePaused, StateStopping}:      true,
	{StateStopping, StateStopped}:     true,
}

// validateTransition 校验一次转换；同状态也视为非法（如重复 Pause）。
func validateTransition(from, to State) error {
	if !legalTransitions[transition{From: from, To: to}] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
