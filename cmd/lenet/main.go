package main

import (
	"flag"
	"fmt"

	"github.com/ryukinkou/scenelabeling/nnet"
)

func main() {
	batch := flag.Int("batch", 1, "batch size")
	out := flag.String("out", "lenet.net", "config file to write")
	flag.Parse()

	conf := nnet.LeNet(*batch)
	fmt.Println(conf)
	err := conf.Save(*out)
	nnet.CheckErr(err)
}
