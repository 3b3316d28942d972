package capsnet

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/gorgonia/emcaps/routing"
)

type stageNode struct {
	ID     string
	Kind   string
	Output string
	Detail string
}

// ToDot renders the stages of an initialized network and the shapes flowing between them as a DOT graph.
func (n *Net) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("CapsNet"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	side := n.convOut()
	stages := []stageNode{
		{ID: "image", Kind: "Image", Output: fmt.Sprintf("%d×3×%d×%d", n.BatchSize, n.ImageSize, n.ImageSize)},
		{ID: "conv1", Kind: "Conv2d + bias + ReLU", Output: fmt.Sprintf("%d×%d×%d", n.A, side, side), Detail: fmt.Sprintf("kernel %d, stride %d", convKernel, convStride)},
		{ID: "primarycaps", Kind: "Primary Capsules", Output: fmt.Sprintf("%d×%d×%d", n.B, side, side), Detail: "1×1 projections, sigmoid activations"},
	}
	for _, l := range n.layers() {
		stages = append(stages, layerNode(l))
	}
	stages = append(stages, stageNode{ID: "output", Kind: "Class vector", Output: fmt.Sprintf("%d×%d", n.BatchSize, n.OutputSize())})

	var buf bytes.Buffer
	for i, s := range stages {
		tmpl.Execute(&buf, s)
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		g.AddNode("CapsNet", s.ID, attrs)
		buf.Reset()
		if i > 0 {
			g.AddEdge(stages[i-1].ID, s.ID, true, nil)
		}
	}
	return g.String()
}

func layerNode(l *routing.Layer) stageNode {
	geo := l.Geometry()
	kernel := fmt.Sprintf("kernel %d, stride %d", l.Kernel, l.Stride)
	if l.Kernel == 0 {
		kernel = "full receptive field"
	}
	detail := fmt.Sprintf("%s, %d EM iterations", kernel, l.Iters)
	if l.Shared {
		detail += ", shared transform"
	}
	if l.Coordinates {
		detail += ", coordinate addition"
	}
	return stageNode{
		ID:     l.Name,
		Kind:   "Convolutional Capsules",
		Output: fmt.Sprintf("%d×%d×%d", geo.Out, geo.OutH, geo.OutW),
		Detail: detail,
	}
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Stage</TD><TD>{{.ID}}</TD></TR>
<TR><TD>Kind</TD><TD>{{.Kind}}</TD></TR>
<TR><TD>Output</TD><TD>{{.Output}}</TD></TR>
{{if .Detail}}<TR><TD>Detail</TD><TD>{{.Detail}}</TD></TR>
{{end}}</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("stage").Parse(tmplRaw))
}
