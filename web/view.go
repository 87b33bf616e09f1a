package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/ryukinkou/scenelabeling/img"
	"github.com/ryukinkou/scenelabeling/nnet"
	"k8s.io/klog/v2"
)

const (
	tileSize = 120
	tileCols = 6
)

// ViewPage has the handler functions to view the input and output of each layer for one image.
type ViewPage struct {
	*Templates
	Image int
	net   *nnet.Network
	mu    *sync.Mutex
}

type LayerInfo struct {
	Desc  string
	Image string
	Width int
}

// Base data for handler functions to view network outputs. Access to the network is
// serialised with mu.
func NewViewPage(t *Templates, net *nnet.Network, mu *sync.Mutex) *ViewPage {
	return &ViewPage{Templates: t, net: net, mu: mu}
}

// outputs of each layer, index 0 is the network input
func (p *ViewPage) outputs() []*nnet.DataLayer {
	out := []*nnet.DataLayer{p.net.Input}
	for _, l := range p.net.Layers {
		out = append(out, l.Output())
	}
	return out
}

// Handler function for the main view page
func (p *ViewPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		vars := mux.Vars(r)
		if s, ok := vars["image"]; ok {
			n, _ := strconv.Atoi(s)
			if n < 0 || n >= p.net.BatchSize {
				http.NotFound(w, r)
				return
			}
			p.Image = n
		}
		p.Select("/view")
		p.Heading = fmt.Sprintf("image %d of %d", p.Image, p.net.BatchSize)
		p.Exec(w, "view", p)
	}
}

// Used in template to display the layer data
func (p *ViewPage) Layers() []LayerInfo {
	var info []LayerInfo
	for i, l := range p.outputs() {
		desc := "input"
		if i > 0 {
			desc = p.net.Layers[i-1].ToString()
		}
		maps := l.Dim().FeatureMaps
		cols := min(maps, tileCols)
		info = append(info, LayerInfo{
			Desc:  fmt.Sprintf("%d: %s => %s", i, desc, l.Dim()),
			Image: fmt.Sprintf("/layer/%d/%d.svg", p.Image, i),
			Width: cols * tileSize,
		})
	}
	return info
}

// Handler function to generate the svg heat map for the feature maps of one layer
func (p *ViewPage) Heatmap() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		vars := mux.Vars(r)
		image, _ := strconv.Atoi(vars["image"])
		layer, _ := strconv.Atoi(vars["layer"])
		outputs := p.outputs()
		if layer >= len(outputs) || image >= p.net.BatchSize {
			klog.V(1).InfoS("heat map not found", "image", image, "layer", layer)
			http.NotFound(w, r)
			return
		}
		l := outputs[layer]
		data, err := l.Read()
		if err != nil {
			logError(w, err)
			return
		}
		maps, err := img.FeatureMaps(data, l.Dim(), image)
		if err != nil {
			logError(w, err)
			return
		}
		var buf bytes.Buffer
		if err := img.WriteFeatureMapsSVG(&buf, maps, tileCols, tileSize); err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		buf.WriteTo(w)
	}
}

// Handler function to get a single feature map as a grayscale png
func (p *ViewPage) FeatureMap() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		vars := mux.Vars(r)
		image, _ := strconv.Atoi(vars["image"])
		layer, _ := strconv.Atoi(vars["layer"])
		index, _ := strconv.Atoi(vars["map"])
		outputs := p.outputs()
		if layer >= len(outputs) || image >= p.net.BatchSize || index >= outputs[layer].Dim().FeatureMaps {
			http.NotFound(w, r)
			return
		}
		l := outputs[layer]
		data, err := l.Read()
		if err != nil {
			logError(w, err)
			return
		}
		maps, err := img.FeatureMaps(data, l.Dim(), image)
		if err != nil {
			logError(w, err)
			return
		}
		var buf bytes.Buffer
		if err := img.WritePNG(&buf, maps[index]); err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		buf.WriteTo(w)
	}
}

// ConfigPage shows the network configuration.
type ConfigPage struct {
	*Templates
	Text string
}

func NewConfigPage(t *Templates, conf nnet.Config) *ConfigPage {
	t.Heading = "config"
	t.Select("/config")
	return &ConfigPage{Templates: t, Text: conf.String()}
}

func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.Exec(w, "config", p)
	}
}

// NewRouter sets up the routes for viewing the network.
func NewRouter(net *nnet.Network) (*mux.Router, error) {
	t, err := NewTemplates()
	if err != nil {
		return nil, err
	}
	t.AddMenuItem(Link{Name: "view", Url: "/view"})
	t.AddMenuItem(Link{Name: "config", Url: "/config"})
	mu := new(sync.Mutex)
	viewPage := NewViewPage(t.Clone(), net, mu)
	configPage := NewConfigPage(t.Clone(), net.Config)

	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/view", http.StatusFound))
	r.HandleFunc("/view", viewPage.Base())
	r.HandleFunc("/view/{image:[0-9]+}", viewPage.Base())
	r.HandleFunc("/layer/{image:[0-9]+}/{layer:[0-9]+}.svg", viewPage.Heatmap())
	r.HandleFunc("/layer/{image:[0-9]+}/{layer:[0-9]+}/{map:[0-9]+}.png", viewPage.FeatureMap())
	r.HandleFunc("/config", configPage.Base())
	return r, nil
}
