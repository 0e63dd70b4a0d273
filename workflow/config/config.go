// Package config defines the configuration structs used to initialize the
// workflow engine, following the same Default*Config/Merge convention the
// rest of this module uses: structs are JSON-tagged, resolved once at
// construction time, then turned into live objects.
package config

// CheckpointConfig controls workflow state persistence during execution.
type CheckpointConfig struct {
	Store    string `json:"store"`
	Interval int    `json:"interval"`
	Preserve bool   `json:"preserve"`
}

func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Store:    "memory",
		Interval: 0,
		Preserve: false,
	}
}

func (c *CheckpointConfig) Merge(source *CheckpointConfig) {
	if source.Store != "" {
		c.Store = source.Store
	}
	if source.Interval > 0 {
		c.Interval = source.Interval
	}
	if source.Preserve {
		c.Preserve = source.Preserve
	}
}

// QueueConfig controls the step queue execution loop.
type QueueConfig struct {
	Name               string           `json:"name"`
	Observer           string           `json:"observer"`
	MaxStepsPerBatch   int              `json:"max_steps_per_batch"`
	MaxTotalSteps      int              `json:"max_total_steps"`
	ShellTimeoutMS     int              `json:"shell_timeout_ms"`
	Checkpoint         CheckpointConfig `json:"checkpoint"`
}

func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{
		Name:             name,
		Observer:         "slog",
		MaxStepsPerBatch: 10,
		MaxTotalSteps:    10000,
		ShellTimeoutMS:   30000,
		Checkpoint:       DefaultCheckpointConfig(),
	}
}

func (c *QueueConfig) Merge(source *QueueConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.MaxStepsPerBatch > 0 {
		c.MaxStepsPerBatch = source.MaxStepsPerBatch
	}
	if source.MaxTotalSteps > 0 {
		c.MaxTotalSteps = source.MaxTotalSteps
	}
	if source.ShellTimeoutMS > 0 {
		c.ShellTimeoutMS = source.ShellTimeoutMS
	}
	c.Checkpoint.Merge(&source.Checkpoint)
}

// ParallelConfig controls the sub-agent parallel fan-out driver.
type ParallelConfig struct {
	Observer     string `json:"observer"`
	MaxWorkers   int    `json:"max_workers"`
	WorkerCap    int    `json:"worker_cap"`
	FailFastNil  *bool  `json:"fail_fast,omitempty"`
	DebugSerial  bool   `json:"debug_serial"`
}

func (c *ParallelConfig) FailFast() bool {
	if c.FailFastNil == nil {
		return true
	}
	return *c.FailFastNil
}

func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Observer:   "slog",
		MaxWorkers: 0,
		WorkerCap:  16,
	}
}

func (c *ParallelConfig) Merge(source *ParallelConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.MaxWorkers > 0 {
		c.MaxWorkers = source.MaxWorkers
	}
	if source.WorkerCap > 0 {
		c.WorkerCap = source.WorkerCap
	}
	if source.FailFastNil != nil {
		c.FailFastNil = source.FailFastNil
	}
	if source.DebugSerial {
		c.DebugSerial = source.DebugSerial
	}
}

// EventBusConfig controls the workflow lifecycle event bus.
type EventBusConfig struct {
	Name              string `json:"name"`
	ChannelBufferSize int    `json:"channel_buffer_size"`
}

func DefaultEventBusConfig(name string) EventBusConfig {
	return EventBusConfig{
		Name:              name,
		ChannelBufferSize: 64,
	}
}

func (c *EventBusConfig) Merge(source *EventBusConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.ChannelBufferSize > 0 {
		c.ChannelBufferSize = source.ChannelBufferSize
	}
}

// EngineConfig composes the sub-configs needed to run the whole engine.
type EngineConfig struct {
	Queue     QueueConfig    `json:"queue"`
	Parallel  ParallelConfig `json:"parallel"`
	EventBus  EventBusConfig `json:"event_bus"`
}

func DefaultEngineConfig(name string) EngineConfig {
	return EngineConfig{
		Queue:    DefaultQueueConfig(name),
		Parallel: DefaultParallelConfig(),
		EventBus: DefaultEventBusConfig(name),
	}
}

func (c *EngineConfig) Merge(source *EngineConfig) {
	c.Queue.Merge(&source.Queue)
	c.Parallel.Merge(&source.Parallel)
	c.EventBus.Merge(&source.EventBus)
}
