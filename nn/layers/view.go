package layers

import (
	"fmt"

	"capsnet/tensor"
)

// View reshapes its input to a fixed shape; one dimension may be -1 and is
// inferred, so View(-1, 8) keeps the batch axis whatever its size.
type View struct {
	shape []int
}

func NewView(shape ...int) *View { return &View{shape: append([]int(nil), shape...)} }

func (v *View) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Reshape(v.shape...)
}

func (v *View) Tag() string {
	return fmt.Sprintf("View%v", v.shape)
}
