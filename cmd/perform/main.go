// Command perform loads DSP programs and runs them on a performer backend.
//
// Usage:
//
//	# Show endpoints, diagnostics and the lowered schedule
//	perform inspect tremolo.yaml --disasm
//
//	# Process a WAV file
//	perform render tremolo.yaml --in voice.wav --out out.wav --set rate=4
//
//	# Relink on every save and report diagnostics
//	perform watch tremolo.yaml --metrics-addr :9090
//
//	# Run the program live with level meters
//	perform monitor tremolo.yaml
package main

func main() {
	Execute()
}
