package models

// 请求参数到上游词表的固定映射。表外的值一律拒绝，不做兜底转换。

const (
	ModeT2V = "t2v"
	ModeI2V = "i2v"
)

var modeModels = map[string]string{
	ModeT2V: "sora-2-text-to-video",
	ModeI2V: "sora-2-image-to-video",
}

var durationVocab = map[int]string{
	5:  "5s",
	10: "10s",
	15: "15s",
}

var aspectVocab = map[string]string{
	"16:9": "landscape",
	"9:16": "portrait",
	"1:1":  "square",
}

// ProviderModel 模式到上游模型名
func ProviderModel(mode string) (string, bool) {
	m, ok := modeModels[mode]
	return m, ok
}

// ProviderDuration 时长到上游词表
func ProviderDuration(seconds int) (string, bool) {
	d, ok := durationVocab[seconds]
	return d, ok
}

// ProviderAspectRatio 画幅到上游词表
func ProviderAspectRatio(ratio string) (string, bool) {
	a, ok := aspectVocab[ratio]
	return a, ok
}
