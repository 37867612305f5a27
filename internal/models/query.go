package models

// QueryRequest is the body of POST /query/.
type QueryRequest struct {
	Prompt string `json:"prompt"`
}

// QueryResponse carries either a text answer or a visualization.
type QueryResponse struct {
	Response string `json:"response"`
	Image    string `json:"image,omitempty"` // base64 PNG
}

// VisualizationStatus is the response text for a generated chart.
const VisualizationStatus = "Visualization generated successfully."
