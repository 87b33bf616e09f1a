package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

// Network configuration settings
type Config struct {
	BatchSize   int
	FeatureMaps int
	Height      int
	Width       int
	WeightScale float64
	Bias        float64
	RandSeed    int64
	UseGPU      bool
	Profile     bool
	Layers      []LayerConfig
}

// Load network config from json file
func LoadConfig(filePath string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(filePath); err != nil {
		return
	}
	defer f.Close()
	klog.InfoS("loading network config", "path", filePath)
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&c); err != nil {
		err = fmt.Errorf("decode %s: %w", filePath, err)
	}
	return
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	for _, l := range layers {
		c.Layers = append(c.Layers, l.Marshal())
	}
	return c
}

// Save config to JSON file, the file is written to a temporary name and then renamed.
func (c Config) Save(filePath string) error {
	dir, name := filepath.Split(filePath)
	tmpPath := filepath.Join(dir, "."+name)
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	klog.InfoS("saving network config", "path", filePath)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filePath)
}

// Input shape as [batch, featureMaps, height, width]
func (c Config) InputShape() []int {
	return []int{c.BatchSize, c.FeatureMaps, c.Height, c.Width}
}

// InputSize checks the input shape and returns the number of input values it holds.
func (c Config) InputSize() (int, error) {
	desc, err := dnn.NewTensor(c.BatchSize, c.FeatureMaps, c.Height, c.Width)
	if err != nil {
		return 0, fmt.Errorf("input shape: %w", err)
	}
	return desc.Size(), nil
}

// Fields lists the names of the scalar settings, excluding Layers
func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField()-1)
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) configString() string {
	fields := c.Fields()
	str := []string{"== Config =="}
	for _, key := range fields {
		str = append(str, fmt.Sprintf("%-12s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func (c Config) String() string {
	s := c.configString()
	if c.Layers != nil {
		str := []string{"\n== Layers =="}
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
		s += strings.Join(str, "\n")
	}
	return s
}

func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("unknown config field %q", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	case reflect.String:
		f.SetString(val)
	default:
		return c, fmt.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	return c, err
}

func (c Config) SetBool(key string, val bool) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if f.IsValid() && f.Type().Kind() == reflect.Bool {
		f.SetBool(val)
		return c, nil
	}
	return c, fmt.Errorf("invalid field for SetBool: %q", key)
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage
}

// ConfigLayer is the configuration for one layer which can be built on a device.
type ConfigLayer interface {
	Marshal() LayerConfig
	ToString() string
	build(n *Network, in *DataLayer) (Layer, error)
}

// Unmarshal JSON data to get the layer config
func (l LayerConfig) Unmarshal() (ConfigLayer, error) {
	var cfg ConfigLayer
	switch l.Type {
	case "conv":
		cfg = new(Conv)
	case "pool":
		cfg = new(Pool)
	default:
		return nil, fmt.Errorf("invalid layer type: %q", l.Type)
	}
	if err := json.Unmarshal(l.Data, cfg); err != nil {
		return nil, fmt.Errorf("%s layer: %w", l.Type, err)
	}
	return cfg, nil
}

func (l LayerConfig) String() string {
	cfg, err := l.Unmarshal()
	if err != nil {
		return err.Error()
	}
	return cfg.ToString()
}

// Convolutional layer with a bias value per output feature map
type Conv struct {
	Nfeats, Size, Stride, Pad int
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

// Pooling layer, Mode is one of max, avg_incl_pad or avg_excl_pad
type Pool struct {
	Size, Stride int
	Mode         string
}

func (c Pool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	if c.Mode == "" {
		c.Mode = "max"
	}
	return LayerConfig{Type: "pool", Data: marshal(c)}
}

func (c Pool) ToString() string {
	return fmt.Sprintf("pool %+v", c)
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// LeNet returns the convolution and pooling stages of LeNet-5 for batch single channel
// 32x32 images.
func LeNet(batch int) Config {
	return Config{
		BatchSize:   batch,
		FeatureMaps: 1,
		Height:      32,
		Width:       32,
		Bias:        0.1,
		RandSeed:    42,
	}.AddLayers(
		Conv{Nfeats: 6, Size: 5},
		Pool{Size: 2},
		Conv{Nfeats: 16, Size: 5},
		Pool{Size: 2},
	)
}
