// Package config loads a timing/core.Params from a YAML file, the same way
// a caller would hand-build a Params literal, but editable without a
// recompile.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dfinch/rvincore/timing/branchpred"
	"github.com/dfinch/rvincore/timing/cache"
	"github.com/dfinch/rvincore/timing/core"
	"github.com/dfinch/rvincore/timing/memctrl"
	"github.com/dfinch/rvincore/timing/mmu"
)

// Config is the on-disk shape of a timing/core.Params. Every field mirrors
// one on Params or one of its nested collaborator configs. Load decodes the
// YAML onto DefaultConfig, so a field absent from the file keeps its default;
// a field written explicitly as zero stays zero.
type Config struct {
	NumCPUStages int `yaml:"numCpuStages"`

	NumALUStages     int `yaml:"numAluStages"`
	NumMulStages     int `yaml:"numMulStages"`
	NumMul32Stages   int `yaml:"numMul32Stages"`
	NumDivStages     int `yaml:"numDivStages"`
	NumDiv32Stages   int `yaml:"numDiv32Stages"`
	NumFPUALUStages  int `yaml:"numFpuAluStages"`
	NumFPUALU2Stages int `yaml:"numFpuAlu2Stages"`
	NumFPUALU3Stages int `yaml:"numFpuAlu3Stages"`
	NumFPUFMAStages  int `yaml:"numFpuFmaStages"`

	DivideLatencyMin int `yaml:"divideLatencyMin"`
	DivideLatencyMax int `yaml:"divideLatencyMax"`

	NumIMAPEntries    int `yaml:"numImapEntries"`
	DispatchQueueSize int `yaml:"dispatchQueueSize"`

	ResetVector uint64 `yaml:"resetVector"`

	MaxCycles uint64 `yaml:"maxCycles"`

	BranchPredictor BranchPredictorConfig `yaml:"branchPredictor"`
	MemCtrl         MemCtrlConfig         `yaml:"memCtrl"`
	MMU             MMUConfig             `yaml:"mmu"`
	ICache          CacheConfig           `yaml:"iCache"`
	DCache          CacheConfig           `yaml:"dCache"`
}

// BranchPredictorConfig mirrors timing/branchpred.Config.
type BranchPredictorConfig struct {
	BHTSize uint32 `yaml:"bhtSize"`
	BTBSize uint32 `yaml:"btbSize"`
}

// MemCtrlConfig mirrors timing/memctrl.Config.
type MemCtrlConfig struct {
	FrontendDepth   int `yaml:"frontendDepth"`
	BackendDepth    int `yaml:"backendDepth"`
	BurstSize       int `yaml:"burstSize"`
	BaseLatency     int `yaml:"baseLatency"`
	QueueingPenalty int `yaml:"queueingPenalty"`
}

// MMUConfig mirrors timing/mmu.Config.
type MMUConfig struct {
	Entries    int    `yaml:"entries"`
	PageSize   int    `yaml:"pageSize"`
	HitLatency uint64 `yaml:"hitLatency"`
}

// CacheConfig mirrors timing/cache.Config.
type CacheConfig struct {
	Size          int    `yaml:"size"`
	Associativity int    `yaml:"associativity"`
	BlockSize     int    `yaml:"blockSize"`
	HitLatency    uint64 `yaml:"hitLatency"`
	MissLatency   uint64 `yaml:"missLatency"`
}

// Load reads and parses a YAML file at path onto DefaultConfig, so fields
// absent from the file keep their defaults, and returns the equivalent
// timing/core.Params. Load does not validate the values it reads.
func Load(path string) (core.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Params{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return core.Params{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg.ToParams(), nil
}

// DefaultConfig returns a Config equivalent to core.DefaultParams, so an
// absent or partial YAML file still produces a fully usable Params.
func DefaultConfig() Config {
	p := core.DefaultParams()
	return fromParams(p)
}

func fromParams(p core.Params) Config {
	return Config{
		NumCPUStages:      p.NumCPUStages,
		NumALUStages:      p.NumALUStages,
		NumMulStages:      p.NumMulStages,
		NumMul32Stages:    p.NumMul32Stages,
		NumDivStages:      p.NumDivStages,
		NumDiv32Stages:    p.NumDiv32Stages,
		NumFPUALUStages:   p.NumFPUALUStages,
		NumFPUALU2Stages:  p.NumFPUALU2Stages,
		NumFPUALU3Stages:  p.NumFPUALU3Stages,
		NumFPUFMAStages:   p.NumFPUFMAStages,
		DivideLatencyMin:  p.DivideLatencyMin,
		DivideLatencyMax:  p.DivideLatencyMax,
		NumIMAPEntries:    p.NumIMAPEntries,
		DispatchQueueSize: p.DispatchQueueSize,
		ResetVector:       p.ResetVector,
		MaxCycles:         p.MaxCycles,
		BranchPredictor: BranchPredictorConfig{
			BHTSize: p.BranchPredictor.BHTSize,
			BTBSize: p.BranchPredictor.BTBSize,
		},
		MemCtrl: MemCtrlConfig{
			FrontendDepth:   p.MemCtrl.FrontendDepth,
			BackendDepth:    p.MemCtrl.BackendDepth,
			BurstSize:       p.MemCtrl.BurstSize,
			BaseLatency:     p.MemCtrl.BaseLatency,
			QueueingPenalty: p.MemCtrl.QueueingPenalty,
		},
		MMU: MMUConfig{
			Entries:    p.MMU.Entries,
			PageSize:   p.MMU.PageSize,
			HitLatency: p.MMU.HitLatency,
		},
		ICache: CacheConfig{
			Size: p.ICache.Size, Associativity: p.ICache.Associativity,
			BlockSize: p.ICache.BlockSize, HitLatency: p.ICache.HitLatency,
			MissLatency: p.ICache.MissLatency,
		},
		DCache: CacheConfig{
			Size: p.DCache.Size, Associativity: p.DCache.Associativity,
			BlockSize: p.DCache.BlockSize, HitLatency: p.DCache.HitLatency,
			MissLatency: p.DCache.MissLatency,
		},
	}
}

// ToParams converts a Config into the timing/core.Params it describes.
func (c Config) ToParams() core.Params {
	return core.Params{
		NumCPUStages:      c.NumCPUStages,
		NumALUStages:      c.NumALUStages,
		NumMulStages:      c.NumMulStages,
		NumMul32Stages:    c.NumMul32Stages,
		NumDivStages:      c.NumDivStages,
		NumDiv32Stages:    c.NumDiv32Stages,
		NumFPUALUStages:   c.NumFPUALUStages,
		NumFPUALU2Stages:  c.NumFPUALU2Stages,
		NumFPUALU3Stages:  c.NumFPUALU3Stages,
		NumFPUFMAStages:   c.NumFPUFMAStages,
		DivideLatencyMin:  c.DivideLatencyMin,
		DivideLatencyMax:  c.DivideLatencyMax,
		NumIMAPEntries:    c.NumIMAPEntries,
		DispatchQueueSize: c.DispatchQueueSize,
		ResetVector:       c.ResetVector,
		MaxCycles:         c.MaxCycles,
		BranchPredictor: branchpred.Config{
			BHTSize: c.BranchPredictor.BHTSize,
			BTBSize: c.BranchPredictor.BTBSize,
		},
		MemCtrl: memctrl.Config{
			FrontendDepth:   c.MemCtrl.FrontendDepth,
			BackendDepth:    c.MemCtrl.BackendDepth,
			BurstSize:       c.MemCtrl.BurstSize,
			BaseLatency:     c.MemCtrl.BaseLatency,
			QueueingPenalty: c.MemCtrl.QueueingPenalty,
		},
		MMU: mmu.Config{
			Entries:    c.MMU.Entries,
			PageSize:   c.MMU.PageSize,
			HitLatency: c.MMU.HitLatency,
		},
		ICache: cache.Config{
			Size: c.ICache.Size, Associativity: c.ICache.Associativity,
			BlockSize: c.ICache.BlockSize, HitLatency: c.ICache.HitLatency,
			MissLatency: c.ICache.MissLatency,
		},
		DCache: cache.Config{
			Size: c.DCache.Size, Associativity: c.DCache.Associativity,
			BlockSize: c.DCache.BlockSize, HitLatency: c.DCache.HitLatency,
			MissLatency: c.DCache.MissLatency,
		},
	}
}
