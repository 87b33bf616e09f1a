package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"

	"github.com/ryukinkou/scenelabeling/nnet"
	"github.com/ryukinkou/scenelabeling/num"
	"github.com/ryukinkou/scenelabeling/web"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	useGPU := flag.Bool("gpu", false, "use the CUDA device")
	batch := flag.Int("batch", 4, "batch size when no model is given")
	listen := flag.String("listen", ":8080", "address to serve on")
	user := flag.String("user", "", "basic auth user, password is read from $NETVIEW_PASSWORD")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: netview [opts] [model.net]")
		flag.PrintDefaults()
	}
	flag.Parse()

	conf := nnet.LeNet(*batch)
	if model := flag.Arg(0); model != "" {
		var err error
		conf, err = nnet.LoadConfig(model)
		nnet.CheckErr(err)
	}
	if *useGPU {
		conf.UseGPU = true
	}

	dev, err := num.NewDevice(conf.UseGPU)
	nnet.CheckErr(err)
	size, err := conf.InputSize()
	nnet.CheckErr(err)
	rng := rand.New(rand.NewSource(conf.RandSeed + 1))
	input := make([]float32, size)
	for i := range input {
		input[i] = rng.Float32()
	}
	net, err := nnet.New(dev, conf, input)
	nnet.CheckErr(err)
	fmt.Println(net)

	r, err := web.NewRouter(net)
	nnet.CheckErr(err)
	var h http.Handler = r
	if *user != "" {
		h = web.NewAuthMiddleware(*user, os.Getenv("NETVIEW_PASSWORD")).Middleware(r)
	}
	klog.InfoS("serving network view", "addr", *listen)
	nnet.CheckErr(http.ListenAndServe(*listen, h))
}
