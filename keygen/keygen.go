// Keygen generates and validates API keys for the Axis server.
//
// Key composition:
//
//	[1:algorithm version][4:appid][2:key sequence][1:isRoot][16:signature] = 24 bytes
//
// convertible to base64 without padding. All integers are little-endian.
// The signing salt must match the "api_key_salt" value of the server config.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

const (
	apikeyVersion   = 1
	apikeyAppID     = 4
	apikeySequence  = 2
	apikeyWho       = 1
	apikeySignature = 16
	apikeyLength    = apikeyVersion + apikeyAppID + apikeySequence + apikeyWho + apikeySignature
)

func main() {
	appID := flag.Int("appid", 0, "app id to sign")
	sequence := flag.Int("sequence", 1, "sequential number of the API key")
	isRoot := flag.Bool("isroot", false, "generate a root API key")
	apikey := flag.String("validate", "", "API key to validate")
	salt := flag.String("salt", "", "base64-encoded signing salt, as in the server config")

	flag.Parse()

	hmacSalt, err := base64.StdEncoding.DecodeString(*salt)
	if err != nil {
		fmt.Println("failed to decode salt:", err)
		os.Exit(1)
	}

	switch {
	case *appID != 0:
		fmt.Println(generate(uint32(*appID), uint16(*sequence), *isRoot, hmacSalt))
	case *apikey != "":
		if appid, seq, root, ok := validate(*apikey, hmacSalt); ok {
			who := "ordinary"
			if root {
				who = "ROOT"
			}
			fmt.Printf("valid (%d:%d), %s\n", appid, seq, who)
		} else {
			fmt.Println("INVALID:", *apikey)
			os.Exit(1)
		}
	default:
		flag.Usage()
	}
}

// generate signs a new key with the given salt.
func generate(appID uint32, sequence uint16, isRoot bool, salt []byte) string {
	var data [apikeyLength]byte

	data[0] = 1 // default algorithm
	binary.LittleEndian.PutUint32(data[apikeyVersion:], appID)
	binary.LittleEndian.PutUint16(data[apikeyVersion+apikeyAppID:], sequence)
	if isRoot {
		data[apikeyVersion+apikeyAppID+apikeySequence] = 1
	}

	hasher := hmac.New(md5.New, salt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	copy(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], hasher.Sum(nil))

	return base64.URLEncoding.EncodeToString(data[:])
}

// validate checks the key's signature against the salt and unpacks its fields.
func validate(apikey string, salt []byte) (appID uint32, sequence uint16, isRoot, ok bool) {
	if declen := base64.URLEncoding.DecodedLen(len(apikey)); declen != apikeyLength {
		return
	}

	data, err := base64.URLEncoding.DecodeString(apikey)
	if err != nil {
		return
	}
	if data[0] != 1 {
		return
	}

	hasher := hmac.New(md5.New, salt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	if !bytes.Equal(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], hasher.Sum(nil)) {
		return
	}

	appID = binary.LittleEndian.Uint32(data[apikeyVersion:])
	sequence = binary.LittleEndian.Uint16(data[apikeyVersion+apikeyAppID:])
	isRoot = data[apikeyVersion+apikeyAppID+apikeySequence] == 1
	ok = true

	return
}
