// Copyright 2026 The Kernex Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	yaml "gopkg.in/yaml.v2"
	"kernex.dev/kernex/pkg/addr"
	"kernex.dev/kernex/pkg/frame"
	"kernex.dev/kernex/pkg/paging"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	// Frame pool.
	flagSet.Int("pool-capacity", frame.DefaultCapacity, "number of physical frames in the pool.")
	flagSet.Uint("frame-size", frame.DefaultFrameSize, "distance in bytes between consecutive frame addresses; a multiple of 4096.")
	flagSet.Var(addrPtr(0), "frame-base", "physical address of the first frame.")
	flagSet.Var(shortPolicyPtr(frame.ShortPartial), "short-policy", "what to do when the pool cannot satisfy an allocation: partial (default), fail.")

	// Paging.
	flagSet.Var(boundaryPolicyPtr(paging.StopAtBoundary), "boundary-policy", "what to do with mappings that leave their 4MiB directory slot: stop (default), reject, extend.")
	flagSet.Var(tableSourcePtr(TablesFromRuntime), "table-source", "where page directories and tables come from: runtime (default), pool.")
	flagSet.Var(addrPtr(paging.DefaultRuntimeBase), "table-base", "physical address of the first paging structure when table-source=runtime.")
	flagSet.Int("table-pages", 64, "number of paging structures available when table-source=runtime.")

	// Debugging flags.
	flagSet.String("log", "", "file path where logs are written, default is stderr. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.String("log-format", "text", "log format: text (default), json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("config", "", "TOML file, or YAML file if named *.yaml or *.yml, whose settings override flags.")
}

func addrPtr(v addr.Addr) *addr.Addr {
	return &v
}

func shortPolicyPtr(v frame.ShortPolicy) *frame.ShortPolicy {
	return &v
}

func boundaryPolicyPtr(v paging.BoundaryPolicy) *paging.BoundaryPolicy {
	return &v
}

// get returns the value held by a flag.
func get(v flag.Value) any {
	return v.(flag.Getter).Get()
}

// NewFromFlags creates a new Config with values coming from command line
// flags, then applies the file named by --config, if any.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(get(fl.Value))
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	if conf.ConfigFile == "" {
		return conf, nil
	}
	return conf.ApplyFile(conf.ConfigFile)
}

// ApplyFile returns a copy of c with the settings in the file at path
// applied. Files named *.yaml or *.yml are decoded as YAML, anything else as
// TOML. c is not modified. Unknown keys are an error.
func (c *Config) ApplyFile(path string) (*Config, error) {
	out := deepcopy.Copy(c).(*Config)
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = decodeYAML(path, out)
	default:
		err = decodeTOML(path, out)
	}
	if err != nil {
		return nil, err
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return out, nil
}

func decodeTOML(path string, out *Config) error {
	md, err := toml.DecodeFile(path, out)
	if err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys in config file %q: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(path string, out *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
