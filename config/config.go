package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xyproto/env/v2"
	"golang.org/x/sys/cpu"
	"gopkg.in/yaml.v3"
)

type Endianness string

const (
	LittleEndian = Endianness("little")
	BigEndian    = Endianness("big")

	// Same as the host running the backend.
	NativeEndian = Endianness("native")
)

type RelocationModel string

const (
	StaticRelocation = RelocationModel("static")

	// Position independent code.  Globals are reached through the global
	// offset table via the global base register.
	PICRelocation = RelocationModel("pic")
)

const (
	EndiannessEnv            = "QPU_ENDIAN"
	RelocationModelEnv       = "QPU_RELOCATION_MODEL"
	FixGlobalBaseRegisterEnv = "QPU_FIX_GLOBAL_BASE"
	DisableFPEliminationEnv  = "QPU_DISABLE_FP_ELIM"
	DeleteUselessJumpsEnv    = "QPU_DELETE_USELESS_JUMPS"
)

// Per compilation unit code generation policy.
type Target struct {
	Endianness Endianness `yaml:"endianness"`

	RelocationModel RelocationModel `yaml:"relocation-model"`

	// When true, the global base register is pinned to $gp, saved into a
	// dedicated frame slot and reloaded after every indirect call (PIC only).
	FixGlobalBaseRegister bool `yaml:"fix-global-base-register"`

	// When true, every function with a frame gets a frame pointer.
	DisableFramePointerElimination bool `yaml:"disable-frame-pointer-elimination"`

	// When true, unconditional jumps to the immediately following block are
	// deleted.
	DeleteUselessJumps bool `yaml:"delete-useless-jumps"`
}

func Default() Target {
	return Target{
		Endianness:            LittleEndian,
		RelocationModel:       StaticRelocation,
		FixGlobalBaseRegister: true,
		DeleteUselessJumps:    true,
	}
}

// Parses a yaml configuration on top of the default configuration.  Unknown
// fields are rejected.
func Parse(content []byte) (Target, error) {
	target := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	err := decoder.Decode(&target)
	if err != nil && !errors.Is(err, io.EOF) {
		return Target{}, fmt.Errorf("invalid target configuration: %w", err)
	}

	return target, target.Validate()
}

func Load(fileName string) (Target, error) {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return Target{}, fmt.Errorf("cannot read target configuration: %w", err)
	}

	target, err := Parse(content)
	if err != nil {
		return Target{}, fmt.Errorf("%s: %w", fileName, err)
	}
	return target, nil
}

// Returns a copy of the target with environment variable overrides
// applied.
func (target Target) WithEnvironment() (Target, error) {
	if env.Has(EndiannessEnv) {
		target.Endianness = Endianness(
			strings.ToLower(env.Str(EndiannessEnv)))
	}

	if env.Has(RelocationModelEnv) {
		target.RelocationModel = RelocationModel(
			strings.ToLower(env.Str(RelocationModelEnv)))
	}

	if env.Has(FixGlobalBaseRegisterEnv) {
		target.FixGlobalBaseRegister = env.Bool(FixGlobalBaseRegisterEnv)
	}

	if env.Has(DisableFPEliminationEnv) {
		target.DisableFramePointerElimination = env.Bool(DisableFPEliminationEnv)
	}

	if env.Has(DeleteUselessJumpsEnv) {
		target.DeleteUselessJumps = env.Bool(DeleteUselessJumpsEnv)
	}

	return target, target.Validate()
}

func (target Target) Validate() error {
	switch target.Endianness {
	case LittleEndian, BigEndian, NativeEndian:
	default:
		return fmt.Errorf("unknown endianness: %q", target.Endianness)
	}

	switch target.RelocationModel {
	case StaticRelocation, PICRelocation:
	default:
		return fmt.Errorf("unknown relocation model: %q", target.RelocationModel)
	}

	return nil
}

func (target Target) IsPIC() bool {
	return target.RelocationModel == PICRelocation
}

// True when the global base register needs to be saved and restored
// around calls.
func (target Target) UsesGlobalBaseRestore() bool {
	return target.IsPIC() && target.FixGlobalBaseRegister
}

func (target Target) ByteOrder() binary.ByteOrder {
	switch target.Endianness {
	case BigEndian:
		return binary.BigEndian
	case NativeEndian:
		if cpu.IsBigEndian {
			return binary.BigEndian
		}
		return binary.LittleEndian
	default:
		return binary.LittleEndian
	}
}
