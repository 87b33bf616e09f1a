package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/ryukinkou/scenelabeling/blobs"
	"github.com/ryukinkou/scenelabeling/img"
	"github.com/ryukinkou/scenelabeling/nnet"
	"github.com/ryukinkou/scenelabeling/num"
	"k8s.io/klog/v2"
)

const tileSize = 160

func main() {
	klog.InitFlags(nil)
	ctx := context.Background()

	seed := flag.Int64("seed", 42, "random number seed")
	batch := flag.Int("batch", 1, "batch size")
	scale := flag.Float64("scale", 0, "weight scale, 0 for 1/fan in")
	useGPU := flag.Bool("gpu", false, "use the CUDA device")
	profile := flag.Bool("profile", false, "print profiling info")
	out := flag.String("out", "", "directory or gs://bucket/prefix for feature map heat maps")
	show := flag.Int("show", 16, "number of output values to print")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: convnet [opts] [model.net]")
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	conf := nnet.LeNet(*batch)
	if model := flag.Arg(0); model != "" {
		var err error
		conf, err = nnet.LoadConfig(model)
		nnet.CheckErr(err)
	}

	// settings given on the command line override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			conf.RandSeed = *seed
		case "batch":
			conf.BatchSize = *batch
		case "scale":
			conf.WeightScale = *scale
		case "gpu":
			conf.UseGPU = *useGPU
		case "profile":
			conf.Profile = *profile
		}
	})
	fmt.Println(conf)

	dev, err := num.NewDevice(conf.UseGPU)
	nnet.CheckErr(err)
	defer dev.Release()
	dev.Profiling(conf.Profile)

	input, err := randomInput(conf)
	nnet.CheckErr(err)
	net, err := nnet.New(dev, conf, input)
	nnet.CheckErr(err)
	defer net.Release()
	fmt.Println(net)

	res, err := net.Output().Read()
	nnet.CheckErr(err)
	fmt.Printf("output %s:\n", net.Output().Dim())
	nnet.CheckErr(num.PrintDynamicArray(os.Stdout, res, min(*show, len(res))))

	if *out != "" {
		store, err := blobs.Open(*out)
		nnet.CheckErr(err)
		nnet.CheckErr(saveHeatmaps(ctx, store, net))
	}
	if conf.Profile {
		dev.PrintProfile(os.Stdout)
	}
}

// uniform random input data in the range 0-1
func randomInput(conf nnet.Config) ([]float32, error) {
	size, err := conf.InputSize()
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(conf.RandSeed + 1))
	data := make([]float32, size)
	for i := range data {
		data[i] = rng.Float32()
	}
	return data, nil
}

// write a tiled heat map of the feature maps of the first image for the input and each layer
func saveHeatmaps(ctx context.Context, store blobs.Store, net *nnet.Network) error {
	outputs := []*nnet.DataLayer{net.Input}
	for _, l := range net.Layers {
		outputs = append(outputs, l.Output())
	}
	for i, layer := range outputs {
		data, err := layer.Read()
		if err != nil {
			return err
		}
		maps, err := img.FeatureMaps(data, layer.Dim(), 0)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := img.WriteFeatureMapsSVG(&buf, maps, 4, tileSize); err != nil {
			return err
		}
		name := fmt.Sprintf("layer%d.svg", i)
		if _, err := store.Put(ctx, name, &buf); err != nil {
			return err
		}
		klog.InfoS("saved feature maps", "layer", i, "url", store.URL(name))
	}
	return nil
}
