// Package transcript turns segmentation events into output: console lines,
// vocabulary-corrected finals, and persisted utterance records.
//
// Everything here implements [segment.EventHandler] and can be stacked:
//
//	h := transcript.NewCorrector(
//	    transcript.Multi{transcript.NewConsole(os.Stdout, os.Stderr), store},
//	    vocabulary,
//	)
package transcript

// Correction captures a single phrase-level substitution.
type Correction struct {
	// Original is the phrase as produced by the decoder.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64
}
