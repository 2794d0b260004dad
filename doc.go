// Package ctrdecrypt decrypts the NAND of the Nintendo 3DS, also known as CTR, and recovers the
// keys and keystreams needed to decrypt its content elsewhere.
//
// Every NAND partition is encrypted with AES in counter mode, the counter being derived from a
// hash of the console CID and the offset. This package can decrypt any window of a raw NAND,
// locate ticket.db and recover title keys, extract NCCH contents from CTRNAND, and generate
// keystreams ("xorpads") for NCCH, SD and NAND contents. Key slots are modeled in software and
// must be fed with the console key material.
//
// This package comes with a CLI. You can install it like this:
//
//	go install github.com/connesc/ctrdecrypt/cmd/ctrdecrypt@latest
package ctrdecrypt
