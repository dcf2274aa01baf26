package scene

import (
	"math/rand"

	"gpurigid/internal/physics"
)

func ground(half float32) ShapeDef {
	return ShapeDef{Name: "ground", Type: "box", HalfExtents: [3]float32{half, 0.5, half}}
}

// Pyramid stacks unit cubes on a static slab, levels x levels at the base.
func Pyramid(levels int) *File {
	cfg := physics.DefaultConfig()
	f := &File{
		Config: &cfg,
		Shapes: []ShapeDef{
			ground(float32(levels) + 10),
			{Name: "cube", Type: "box", HalfExtents: [3]float32{0.5, 0.5, 0.5}},
		},
		Bodies: []BodyDef{{Name: "ground", Shape: "ground", Position: [3]float32{0, -0.5, 0}, Color: "DarkGray"}},
	}
	for level := 0; level < levels; level++ {
		side := levels - level
		offset := 0.5*float32(level) - float32(levels)/2
		for i := 0; i < side; i++ {
			for k := 0; k < side; k++ {
				f.Bodies = append(f.Bodies, BodyDef{
					Shape:    "cube",
					Mass:     1,
					Position: [3]float32{float32(i) + offset, 0.5 + float32(level), float32(k) + offset},
					Color:    palette[level%len(palette)],
				})
			}
		}
	}
	return f
}

// Rain drops count boxes and prisms with random orientations from above a
// static slab. The same seed gives the same scene.
func Rain(count int, seed int64) *File {
	rng := rand.New(rand.NewSource(seed))
	cfg := physics.DefaultConfig()
	f := &File{
		Config: &cfg,
		Shapes: []ShapeDef{
			ground(40),
			{Name: "cube", Type: "box", HalfExtents: [3]float32{0.5, 0.5, 0.5}},
			{Name: "plank", Type: "box", HalfExtents: [3]float32{0.9, 0.2, 0.4}},
			{Name: "hexagon", Type: "prism", Sides: 6, Radius: 0.6, HalfHeight: 0.3},
		},
		Bodies: []BodyDef{{Name: "ground", Shape: "ground", Position: [3]float32{0, -0.5, 0}, Color: "DarkGray"}},
	}
	names := []string{"cube", "plank", "hexagon"}

	// a loose column, roughly square in plan
	side := 1
	for side*side*4 < count {
		side++
	}
	for i := 0; i < count; i++ {
		x, z, y := i%side, (i/side)%side, i/(side*side)
		f.Bodies = append(f.Bodies, BodyDef{
			Shape: names[rng.Intn(len(names))],
			Mass:  1 + rng.Float32(),
			Position: [3]float32{
				(float32(x)-float32(side)/2)*2.2 + rng.Float32()*0.2,
				3 + float32(y)*2.2,
				(float32(z)-float32(side)/2)*2.2 + rng.Float32()*0.2,
			},
			Rotation: [3]float32{rng.Float32() * 360, rng.Float32() * 360, rng.Float32() * 360},
			Color:    palette[rng.Intn(len(palette))],
		})
	}
	return f
}
