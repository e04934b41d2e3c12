package training

import (
	"doc-classifier/classifier"
	"doc-classifier/domain"
	"doc-classifier/encoder"
)

// CurrentVersion is the newest model format this build reads and writes.
const CurrentVersion = 4

// Feature is a model capability that older readers may not understand.
type Feature string

const (
	FeatureBase           Feature = "base"
	FeaturePagination     Feature = "pagination"
	FeatureCandidates     Feature = "candidates"
	FeatureShingles       Feature = "shingles"
	FeatureCalibration    Feature = "calibration"
	FeatureNeuralNetwork  Feature = "neural-network"
	FeatureStopPhrases    Feature = "stop-phrases"
	FeatureLanguage       Feature = "language"
	FeatureTokenizedField Feature = "tokenized-fields"
)

// minimumVersion lists the first format version able to carry each feature.
var minimumVersion = map[Feature]int{
	FeatureBase:           1,
	FeaturePagination:     1,
	FeatureCandidates:     2,
	FeatureShingles:       2,
	FeatureCalibration:    2,
	FeatureNeuralNetwork:  3,
	FeatureStopPhrases:    4,
	FeatureLanguage:       4,
	FeatureTokenizedField: 4,
}

// Compatible reports whether a model using features can be written as target
// by a writer at version current.
func Compatible(current, target int, features []Feature) bool {
	if target < 1 || target > current {
		return false
	}
	for _, f := range features {
		v, ok := minimumVersion[f]
		if !ok || v > target {
			return false
		}
	}
	return true
}

// NegotiateVersion returns the oldest version compatible with features.
func NegotiateVersion(features []Feature) int {
	for v := 1; v < CurrentVersion; v++ {
		if Compatible(CurrentVersion, v, features) {
			return v
		}
	}
	return CurrentVersion
}

// Features lists what a configuration relies on.
func Features(enc encoder.Options, clf classifier.Options) []Feature {
	features := []Feature{FeatureBase}
	switch enc.Mode {
	case domain.Pagination:
		features = append(features, FeaturePagination)
	case domain.CandidateCategorization:
		features = append(features, FeatureCandidates)
	}
	if enc.Text.Enabled && enc.Text.Tokenizer.ShingleSize > 1 {
		features = append(features, FeatureShingles)
	}
	if enc.Text.Enabled && len(enc.Text.Tokenizer.StopPhrases) > 0 {
		features = append(features, FeatureStopPhrases)
	}
	if enc.DetectLanguage {
		features = append(features, FeatureLanguage)
	}
	for _, f := range enc.Fields {
		if f.Tokenize {
			features = append(features, FeatureTokenizedField)
			break
		}
	}
	switch {
	case clf.Kind == classifier.NeuralNetwork:
		features = append(features, FeatureNeuralNetwork)
	case clf.Kind == classifier.OneVsRest && (clf.SVM.Calibrate || clf.SVM.Reweight):
		features = append(features, FeatureCalibration)
	}
	return features
}
