package api

import "github.com/samcharles93/cif/internal/predictor"

// PredictRequest carries one padded batch. When neither lengths nor mask is
// given every frame is valid and sequences may differ in length; they are
// zero-padded to the longest.
type PredictRequest struct {
	Hidden  [][][]float32 `json:"hidden"`
	Lengths []int         `json:"lengths,omitempty"`
	Mask    [][]float32   `json:"mask,omitempty"`
	Tail    bool          `json:"tail,omitempty"`
	Store   *bool         `json:"store,omitempty"`
}

type PredictionResponse struct {
	ID         string        `json:"id"`
	Object     string        `json:"object"`
	CreatedAt  int64         `json:"created_at"`
	Tail       bool          `json:"tail"`
	Embeddings [][][]float32 `json:"embeddings"`
	Lengths    []int         `json:"lengths"`
	TokenNum   []float32     `json:"token_num"`
	TokenCount []int         `json:"token_count"`
	Alphas     [][]float32   `json:"alphas"`
	FireCurve  [][]float32   `json:"fire_curve"`
	Fired      [][]int       `json:"fired"`
}

type MaskRequest struct {
	Lengths []int `json:"lengths"`
	// MaxLen defaults to max(lengths).
	MaxLen *int `json:"max_len,omitempty"`
}

type MaskResponse struct {
	Object string      `json:"object"`
	MaxLen int         `json:"max_len"`
	Mask   [][]float32 `json:"mask"`
}

type ConfigResponse struct {
	Object string `json:"object"`
	predictor.Config
}

type DeletePredictionResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}
