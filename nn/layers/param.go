package layers

import (
	"fmt"

	"capsnet/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Param is a named learnable tensor. Trainable is false for parameters an
// external optimizer must leave alone (frozen backbone stages).
type Param struct {
	Name      string
	Value     *tensor.Tensor
	Trainable bool
}

// Parametrized is implemented by layers that own parameters.
type Parametrized interface {
	Params(prefix string) []Param
}

// JoinName builds dotted parameter names: JoinName("heads", 2) == "heads.2".
func JoinName(prefix string, part interface{}) string {
	if prefix == "" {
		return fmt.Sprint(part)
	}
	return fmt.Sprintf("%s.%v", prefix, part)
}

// Initializer returns a fresh tensor of the given shape.
type Initializer func(shape ...int) *tensor.Tensor

// Normal draws every element from N(mu, sigma²).
func Normal(mu, sigma float64, src rand.Source) Initializer {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: src}
	return func(shape ...int) *tensor.Tensor {
		t := tensor.New(shape...)
		for i := range t.Data {
			t.Data[i] = dist.Rand()
		}
		return t
	}
}

// Constant fills every element with v.
func Constant(v float64) Initializer {
	return func(shape ...int) *tensor.Tensor {
		t := tensor.New(shape...)
		if v != 0 {
			for i := range t.Data {
				t.Data[i] = v
			}
		}
		return t
	}
}
