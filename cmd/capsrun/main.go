package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/ioutil"
	"log"
	"os"

	"github.com/gorgonia/emcaps/capsnet"
	"github.com/gorgonia/emcaps/encoding/gif"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

var (
	imgPath = flag.String("image", "", "image to classify (png or jpeg)")
	model   = flag.String("model", "", "gob encoded network parameters. A freshly initialized network is used if empty")
	classes = flag.Int("classes", 10, "number of classes")
	iters   = flag.Int("r", 3, "routing iterations")
	lambda  = flag.Float64("lambda", 1, "inverse temperature of the routing layers")
	gifOut  = flag.String("gif", "", "write the segmentation map as a gif to this file")
	dotOut  = flag.String("dot", "", "write the network topology as a graphviz dot file")
	verbose = flag.Bool("v", false, "log the shape of every stage")
)

// load reads an image and resizes it to size×size, laid out as (3, size, size) in [0, 1].
func load(filename string, size int) ([]float32, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %v", filename)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := size * size
	retVal := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				retVal[c*plane+y*size+x] = float32(dst.Pix[i+c]) / 255
			}
		}
	}
	return retVal, nil
}

func network() (*capsnet.Net, error) {
	if *model != "" {
		bs, err := ioutil.ReadFile(*model)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		n := new(capsnet.Net)
		if err := gob.NewDecoder(bytes.NewReader(bs)).Decode(n); err != nil {
			return nil, errors.Wrapf(err, "decoding %v", *model)
		}
		return n, nil
	}
	conf := capsnet.DefaultConf(*classes)
	conf.R = *iters
	n := capsnet.New(conf)
	if err := n.Init(); err != nil {
		return nil, err
	}
	return n, nil
}

func main() {
	flag.Parse()
	if *imgPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	n, err := network()
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer n.Close()

	if *dotOut != "" {
		if err := ioutil.WriteFile(*dotOut, []byte(n.ToDot()), 0644); err != nil {
			log.Fatal(err)
		}
	}

	img, err := load(*imgPath, n.ImageSize)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	inf, err := capsnet.Infer(n, float32(*lambda), *verbose)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer inf.Close()

	acts, seg, err := inf.Infer(img)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if *verbose {
		log.Print(inf.ExecLog())
	}

	best := 0
	for c, a := range acts {
		fmt.Printf("class %d: %.4f\n", c, a)
		if a > acts[best] {
			best = c
		}
	}
	fmt.Printf("predicted: %d\n", best)

	if *gifOut != "" {
		f, err := os.Create(*gifOut)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		enc := gif.NewGifEncoder(f, gif.DefaultColours(n.E), 4)
		frame := gif.Frame{
			Title:   *imgPath,
			Classes: n.E,
			H:       n.ImageSize,
			W:       n.ImageSize,
			Seg:     seg,
			Acts:    acts,
		}
		if err := enc.Encode(frame); err != nil {
			log.Fatalf("%+v", err)
		}
		if err := enc.Flush(); err != nil {
			log.Fatal(err)
		}
	}
}
