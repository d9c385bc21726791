package embedding

// ONNXOptions configures the CLIP encoders run through ONNX Runtime.
// The visual model takes "pixel_values" [1,3,size,size] and yields "image_embeds" [1,dim];
// the textual model takes "input_ids" and "attention_mask" [1,context] and yields "text_embeds" [1,dim].
type ONNXOptions struct {
	// LibraryPath is the onnxruntime shared library; empty uses the platform default.
	LibraryPath    string
	ImageModelPath string
	TextModelPath  string
	Dimensions     int
	ImageSize      int
	ContextLength  int
	CacheSize      int
	// VocabPath and MergesPath select the BPE tokenizer; both empty selects CLIPTokenizer.
	VocabPath  string
	MergesPath string
}
