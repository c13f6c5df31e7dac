package models

// GraphDoc is the JSON document form of a canvas graph, the target of
// RFC 6902 patch operations. Node results never travel through it; patching
// cannot forge cached outputs.
type GraphDoc struct {
	Name    string    `json:"name"`
	Nodes   []*Node   `json:"nodes"`
	Edges   []*Edge   `json:"edges"`
	Handles []*Handle `json:"handles"`
}
