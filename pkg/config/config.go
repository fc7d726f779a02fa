package config

import (
	"time"

	"github.com/charlie0129/q0/pkg/q0"
)

// Config holds the analysis parameters and acquisition settings.
type Config interface {
	MinRunDuration() time.Duration
	ValveTolerance() float64
	HeaterTolerance() float64
	GradientTolerance() float64
	MinDownstreamLevel() float64
	LowUpstreamLevel() float64
	CheckUpstreamLevel() bool
	SettleSecondsPerWatt() float64
	MaxFlatLevelSlope() float64
	SampleInterval() time.Duration

	MySamplerPath() string
	DataDir() string
	DatabaseURL() string
	BatchPlan() string
	BatchSchedule() string
	MQTTBroker() string
	MQTTTopic() string
	HTTPListen() string
	AllowedOrigins() []string

	SetMinRunDuration(time.Duration)
	SetValveTolerance(float64)
	SetHeaterTolerance(float64)
	SetSettleSecondsPerWatt(float64)
	SetCheckUpstreamLevel(bool)
	SetMySamplerPath(string)
	SetDataDir(string)
	SetDatabaseURL(string)
	SetBatchSchedule(string)
	SetMQTTBroker(string)

	// Params returns the analysis parameters as used by package q0.
	Params() q0.Params

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
