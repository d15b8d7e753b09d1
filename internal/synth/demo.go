package synth

import "github.com/banshee-data/nodesweep/internal/graph"

// DemoGraph returns a small material graph for the demo command. The
// inputs listed by DemoInputs drive the synthetic image; Distortion and
// Roughness do not, so elimination should disable them.
func DemoGraph() *graph.Graph {
	rot := graph.NewVector3("Rotation", graph.Vec3{0, 0, 0}, graph.Vec3{-1, -1, -1}, graph.Vec3{1, 1, 1})
	rot.Order = "XYZ"
	return graph.New("Demo",
		graph.NewNode("Noise Texture",
			graph.NewScalar("Scale", 1.5, 0, 3),
			graph.NewInteger("Detail", 1, 0, 3),
			graph.NewScalar("Distortion", 0, 0, 1),
		),
		graph.NewNode("Mapping", rot),
		graph.NewNode("Principled BSDF",
			graph.NewColor("Base Color", graph.Vec3{0.8, 0.3, 0.2}, graph.RGBToHSV(graph.Vec3{0.8, 0.3, 0.2}), graph.Vec3{0.1, 0.1, 0.1}),
			graph.NewScalar("Roughness", 0.5, 0, 1),
		),
	)
}

// DemoInputs are the inputs of DemoGraph the synthetic renderer reads.
func DemoInputs() []string {
	return []string{"Noise Texture/Scale", "Noise Texture/Detail", "Mapping/Rotation", "Principled BSDF/Base Color"}
}
