// Package protocol owns the batch stream wire contract.
//
// Ownership boundary:
// - chunk index, kind and status codes
// - value, chunk definition, head and chunk tuple encodings
// - tuple parsing entry points used by the stream router
//
// A stream is a JSON array written one element per line:
//
//	[
//	{"0":[[data],[key,kind,index]...]}
//	,[index,status]
//	,[index,status,[[data],...]]
//	]
package protocol
