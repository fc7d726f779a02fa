package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/utils/ptr"
)

var (
	defaultParams = q0.DefaultParams()

	defaultFileConfig = &RawFileConfig{
		MinRunDurationSeconds: ptr.To(defaultParams.MinRunDuration.Seconds()),
		ValveTolerance:        ptr.To(defaultParams.ValveTolerance),
		HeaterTolerance:       ptr.To(defaultParams.HeaterTolerance),
		GradientTolerance:     ptr.To(defaultParams.GradientTolerance),
		MinDownstreamLevel:    ptr.To(defaultParams.MinDownstreamLevel),
		LowUpstreamLevel:      ptr.To(defaultParams.LowUpstreamLevel),
		// Older cryomodules have no working upstream level probe, so this is
		// opt-in.
		CheckUpstreamLevel:    ptr.To(false),
		SettleSecondsPerWatt:  ptr.To(defaultParams.SettleSecondsPerWatt),
		MaxFlatLevelSlope:     ptr.To(defaultParams.MaxFlatLevelSlope),
		SampleIntervalSeconds: ptr.To(defaultParams.SampleInterval.Seconds()),
		MySamplerPath:         ptr.To("mySampler"),
		DataDir:               ptr.To("data"),
		DatabaseURL:           ptr.To(""),
		BatchPlan:             ptr.To(""),
		BatchSchedule:         ptr.To(""),
		MQTTBroker:            ptr.To(""),
		MQTTTopic:             ptr.To("q0"),
		HTTPListen:            ptr.To(""),
		AllowedOrigins:        ptr.To([]string{}),
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file. Unset fields fall back to the
// defaults.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawFileConfig struct {
	MinRunDurationSeconds *float64 `json:"minRunDurationSeconds,omitempty"`
	ValveTolerance        *float64 `json:"valveTolerance,omitempty"`
	HeaterTolerance       *float64 `json:"heaterTolerance,omitempty"`
	GradientTolerance     *float64 `json:"gradientTolerance,omitempty"`
	MinDownstreamLevel    *float64 `json:"minDownstreamLevel,omitempty"`
	LowUpstreamLevel      *float64 `json:"lowUpstreamLevel,omitempty"`
	CheckUpstreamLevel    *bool    `json:"checkUpstreamLevel,omitempty"`
	SettleSecondsPerWatt  *float64 `json:"settleSecondsPerWatt,omitempty"`
	MaxFlatLevelSlope     *float64 `json:"maxFlatLevelSlope,omitempty"`
	SampleIntervalSeconds *float64 `json:"sampleIntervalSeconds,omitempty"`
	MySamplerPath         *string  `json:"mySamplerPath,omitempty"`
	DataDir               *string  `json:"dataDir,omitempty"`
	DatabaseURL           *string  `json:"databaseURL,omitempty"`
	// BatchPlan is a plan the daemon reprocesses on BatchSchedule, a cron
	// expression.
	BatchPlan     *string `json:"batchPlan,omitempty"`
	BatchSchedule *string `json:"batchSchedule,omitempty"`
	// MQTTBroker enables publishing of processed sessions, e.g.
	// tcp://localhost:1883. Messages go to <MQTTTopic>/<kind>/<id>.
	MQTTBroker *string `json:"mqttBroker,omitempty"`
	MQTTTopic  *string `json:"mqttTopic,omitempty"`
	// HTTPListen additionally serves the read-only routes over TCP.
	HTTPListen     *string   `json:"httpListen,omitempty"`
	AllowedOrigins *[]string `json:"allowedOrigins,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	return &RawFileConfig{
		MinRunDurationSeconds: ptr.To(c.MinRunDuration().Seconds()),
		ValveTolerance:        ptr.To(c.ValveTolerance()),
		HeaterTolerance:       ptr.To(c.HeaterTolerance()),
		GradientTolerance:     ptr.To(c.GradientTolerance()),
		MinDownstreamLevel:    ptr.To(c.MinDownstreamLevel()),
		LowUpstreamLevel:      ptr.To(c.LowUpstreamLevel()),
		CheckUpstreamLevel:    ptr.To(c.CheckUpstreamLevel()),
		SettleSecondsPerWatt:  ptr.To(c.SettleSecondsPerWatt()),
		MaxFlatLevelSlope:     ptr.To(c.MaxFlatLevelSlope()),
		SampleIntervalSeconds: ptr.To(c.SampleInterval().Seconds()),
		MySamplerPath:         ptr.To(c.MySamplerPath()),
		DataDir:               ptr.To(c.DataDir()),
		DatabaseURL:           ptr.To(c.DatabaseURL()),
		BatchPlan:             ptr.To(c.BatchPlan()),
		BatchSchedule:         ptr.To(c.BatchSchedule()),
		MQTTBroker:            ptr.To(c.MQTTBroker()),
		MQTTTopic:             ptr.To(c.MQTTTopic()),
		HTTPListen:            ptr.To(c.HTTPListen()),
		AllowedOrigins:        ptr.To(c.AllowedOrigins()),
	}, nil
}

// get reads one field under the read lock, falling back to its default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

// set writes one field under the write lock.
func set[T any](f *File, field func(*RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = &v
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (f *File) MinRunDuration() time.Duration {
	return seconds(get(f, func(c *RawFileConfig) *float64 { return c.MinRunDurationSeconds }))
}

func (f *File) ValveTolerance() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.ValveTolerance })
}

func (f *File) HeaterTolerance() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.HeaterTolerance })
}

func (f *File) GradientTolerance() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.GradientTolerance })
}

func (f *File) MinDownstreamLevel() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.MinDownstreamLevel })
}

func (f *File) LowUpstreamLevel() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.LowUpstreamLevel })
}

func (f *File) CheckUpstreamLevel() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.CheckUpstreamLevel })
}

func (f *File) SettleSecondsPerWatt() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.SettleSecondsPerWatt })
}

func (f *File) MaxFlatLevelSlope() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.MaxFlatLevelSlope })
}

func (f *File) SampleInterval() time.Duration {
	return seconds(get(f, func(c *RawFileConfig) *float64 { return c.SampleIntervalSeconds }))
}

func (f *File) MySamplerPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.MySamplerPath })
}

func (f *File) DataDir() string {
	return get(f, func(c *RawFileConfig) *string { return c.DataDir })
}

func (f *File) DatabaseURL() string {
	return get(f, func(c *RawFileConfig) *string { return c.DatabaseURL })
}

func (f *File) BatchPlan() string {
	return get(f, func(c *RawFileConfig) *string { return c.BatchPlan })
}

func (f *File) BatchSchedule() string {
	return get(f, func(c *RawFileConfig) *string { return c.BatchSchedule })
}

func (f *File) MQTTBroker() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) HTTPListen() string {
	return get(f, func(c *RawFileConfig) *string { return c.HTTPListen })
}

// AllowedOrigins returns the CORS origins of the TCP listener. Empty allows
// any origin.
func (f *File) AllowedOrigins() []string {
	return get(f, func(c *RawFileConfig) *[]string { return c.AllowedOrigins })
}

func (f *File) SetMinRunDuration(d time.Duration) {
	if d <= 0 {
		panic("minimum run duration must be positive")
	}
	set(f, func(c *RawFileConfig) **float64 { return &c.MinRunDurationSeconds }, d.Seconds())
}

func (f *File) SetValveTolerance(v float64) {
	if v < 0 {
		panic("valve tolerance must not be negative")
	}
	set(f, func(c *RawFileConfig) **float64 { return &c.ValveTolerance }, v)
}

func (f *File) SetHeaterTolerance(v float64) {
	if v < 0 {
		panic("heater tolerance must not be negative")
	}
	set(f, func(c *RawFileConfig) **float64 { return &c.HeaterTolerance }, v)
}

func (f *File) SetSettleSecondsPerWatt(v float64) {
	if v < 0 {
		panic("settle time per watt must not be negative")
	}
	set(f, func(c *RawFileConfig) **float64 { return &c.SettleSecondsPerWatt }, v)
}

func (f *File) SetCheckUpstreamLevel(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.CheckUpstreamLevel }, b)
}

func (f *File) SetMySamplerPath(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MySamplerPath }, s)
}

func (f *File) SetDataDir(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.DataDir }, s)
}

func (f *File) SetDatabaseURL(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.DatabaseURL }, s)
}

func (f *File) SetBatchSchedule(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.BatchSchedule }, s)
}

func (f *File) SetMQTTBroker(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MQTTBroker }, s)
}

func (f *File) Params() q0.Params {
	return q0.Params{
		MinRunDuration:       f.MinRunDuration(),
		ValveTolerance:       f.ValveTolerance(),
		HeaterTolerance:      f.HeaterTolerance(),
		GradientTolerance:    f.GradientTolerance(),
		MinDownstreamLevel:   f.MinDownstreamLevel(),
		LowUpstreamLevel:     f.LowUpstreamLevel(),
		CheckUpstreamLevel:   f.CheckUpstreamLevel(),
		SettleSecondsPerWatt: f.SettleSecondsPerWatt(),
		MaxFlatLevelSlope:    f.MaxFlatLevelSlope(),
		SampleInterval:       f.SampleInterval(),
	}
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"minRunDuration":       f.MinRunDuration(),
		"valveTolerance":       f.ValveTolerance(),
		"heaterTolerance":      f.HeaterTolerance(),
		"gradientTolerance":    f.GradientTolerance(),
		"minDownstreamLevel":   f.MinDownstreamLevel(),
		"lowUpstreamLevel":     f.LowUpstreamLevel(),
		"checkUpstreamLevel":   f.CheckUpstreamLevel(),
		"settleSecondsPerWatt": f.SettleSecondsPerWatt(),
		"sampleInterval":       f.SampleInterval(),
		"mySamplerPath":        f.MySamplerPath(),
		"dataDir":              f.DataDir(),
		"batchPlan":            f.BatchPlan(),
		"batchSchedule":        f.BatchSchedule(),
		"mqttBroker":           f.MQTTBroker(),
		"mqttTopic":            f.MQTTTopic(),
		"httpListen":           f.HTTPListen(),
	}
}
