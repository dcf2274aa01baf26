// Package scene loads and saves JSON scene descriptions: a pipeline
// config, named convex shapes and the bodies that use them.
package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gpurigid/internal/physics"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// --- JSON types ---

type File struct {
	Config *physics.Config `json:"config,omitempty"`
	Shapes []ShapeDef      `json:"shapes"`
	Bodies []BodyDef       `json:"bodies"`
}

// ShapeDef is a box, a prism or an explicit hull.
type ShapeDef struct {
	Name string `json:"name"`
	Type string `json:"type"`

	HalfExtents [3]float32 `json:"halfExtents,omitempty"`

	Sides      int     `json:"sides,omitempty"`
	Radius     float32 `json:"radius,omitempty"`
	HalfHeight float32 `json:"halfHeight,omitempty"`

	Vertices [][3]float32 `json:"vertices,omitempty"`
	Faces    [][]int      `json:"faces,omitempty"`
}

type BodyDef struct {
	Name  string `json:"name,omitempty"`
	Shape string `json:"shape"`
	// Mass 0 is static.
	Mass     float32    `json:"mass"`
	Position [3]float32 `json:"position"`
	// Rotation is Euler angles in degrees.
	Rotation        [3]float32 `json:"rotation,omitempty"`
	Velocity        [3]float32 `json:"velocity,omitempty"`
	AngularVelocity [3]float32 `json:"angularVelocity,omitempty"`
	Friction        *float32   `json:"friction,omitempty"`
	Restitution     *float32   `json:"restitution,omitempty"`
	Color           string     `json:"color,omitempty"`
}

// Instance is a body created by Build.
type Instance struct {
	ID    physics.BodyID
	Name  string
	Shape physics.ShapeID
	Color rl.Color
}

// --- Color mapping ---

var colorByName = map[string]rl.Color{
	"Red":       rl.Red,
	"Blue":      rl.Blue,
	"Green":     rl.Green,
	"Purple":    rl.Purple,
	"Orange":    rl.Orange,
	"Yellow":    rl.Yellow,
	"Pink":      rl.Pink,
	"SkyBlue":   rl.SkyBlue,
	"Lime":      rl.Lime,
	"Magenta":   rl.Magenta,
	"White":     rl.White,
	"LightGray": rl.LightGray,
	"Gray":      rl.Gray,
	"DarkGray":  rl.DarkGray,
	"Brown":     rl.Brown,
	"Beige":     rl.Beige,
	"Maroon":    rl.Maroon,
	"Gold":      rl.Gold,
}

// palette cycles through colors for generated scenes.
var palette = []string{"Red", "Blue", "Green", "Purple", "Orange", "Yellow", "SkyBlue", "Lime", "Magenta", "Gold"}

func lookupColor(name string) rl.Color {
	if c, ok := colorByName[name]; ok {
		return c
	}
	return rl.LightGray
}

func vec(a [3]float32) rl.Vector3 { return rl.Vector3{X: a[0], Y: a[1], Z: a[2]} }

// --- Loading ---

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scene. A missing or partial config is filled from
// physics.DefaultConfig, so Config is never nil afterwards.
func Parse(data []byte) (*File, error) {
	cfg := physics.DefaultConfig()
	f := File{Config: &cfg}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if f.Config == nil {
		f.Config = &cfg
	}
	return &f, nil
}

// Save writes the scene as indented JSON.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scene: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	return nil
}

// PhysicsConfig returns the scene config or the defaults.
func (f *File) PhysicsConfig() physics.Config {
	if f.Config == nil {
		return physics.DefaultConfig()
	}
	return *f.Config
}

// Build registers the shapes and bodies of the scene in w. On error the
// world keeps whatever was registered before the failing entry.
func (f *File) Build(w *physics.World) ([]Instance, error) {
	shapes := make(map[string]physics.ShapeID, len(f.Shapes))
	for _, def := range f.Shapes {
		if _, dup := shapes[def.Name]; dup {
			return nil, fmt.Errorf("shape %q: duplicate name", def.Name)
		}
		id, err := registerShape(w, def)
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", def.Name, err)
		}
		shapes[def.Name] = id
	}

	out := make([]Instance, 0, len(f.Bodies))
	for i, def := range f.Bodies {
		inst, err := buildBody(w, shapes, def)
		if err != nil {
			name := def.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return out, fmt.Errorf("body %s: %w", name, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func registerShape(w *physics.World, def ShapeDef) (physics.ShapeID, error) {
	switch def.Type {
	case "box":
		return w.RegisterShape(shape.BoxVertices(vec(def.HalfExtents)), shape.BoxFaces(), nil)
	case "prism":
		verts, faces, err := shape.PrismGeometry(def.Sides, def.Radius, def.HalfHeight)
		if err != nil {
			return -1, err
		}
		return w.RegisterShape(verts, faces, nil)
	case "hull":
		verts := make([]rl.Vector3, len(def.Vertices))
		for i, v := range def.Vertices {
			verts[i] = vec(v)
		}
		faces := make([]shape.FaceDesc, len(def.Faces))
		for i, f := range def.Faces {
			faces[i] = shape.FaceDesc{Indices: f}
		}
		return w.RegisterShape(verts, faces, nil)
	}
	return -1, fmt.Errorf("unknown shape type %q: %w", def.Type, physics.ErrInvalidShape)
}

func buildBody(w *physics.World, shapes map[string]physics.ShapeID, def BodyDef) (Instance, error) {
	sid, ok := shapes[def.Shape]
	if !ok {
		return Instance{}, fmt.Errorf("unknown shape %q: %w", def.Shape, physics.ErrInvalidShape)
	}
	const toRad = math.Pi / 180
	rot := rl.QuaternionFromEuler(def.Rotation[0]*toRad, def.Rotation[1]*toRad, def.Rotation[2]*toRad)

	id, err := w.RegisterBody(sid, def.Mass, vec(def.Position), rot)
	if err != nil {
		return Instance{}, err
	}
	if def.Mass > 0 && (def.Velocity != [3]float32{} || def.AngularVelocity != [3]float32{}) {
		if err := w.SetVelocity(id, vec(def.Velocity), vec(def.AngularVelocity)); err != nil {
			return Instance{}, err
		}
	}
	if def.Friction != nil || def.Restitution != nil {
		friction, restitution := float32(physics.DefaultFriction), float32(physics.DefaultRestitution)
		if def.Friction != nil {
			friction = *def.Friction
		}
		if def.Restitution != nil {
			restitution = *def.Restitution
		}
		if err := w.SetMaterial(id, friction, restitution); err != nil {
			return Instance{}, err
		}
	}
	return Instance{ID: id, Name: def.Name, Shape: sid, Color: lookupColor(def.Color)}, nil
}
