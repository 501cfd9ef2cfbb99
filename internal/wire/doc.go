// Package wire owns the byte-level protocol between holoclient and a
// conductor.
//
// Ownership boundary:
//   - MessagePack encoding rules (compact integers, bin for byte slices)
//   - the websocket frame envelope (Request / Response / Signal)
//   - the closed set of API methods and their string names
//   - request tagging and response tag checking
//   - decoding of structured conductor errors
//
// Method names exist as strings only inside this package. Everything above
// it refers to methods through the Method enum.
package wire
