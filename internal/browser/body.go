package browser

import (
	"encoding/base64"

	"github.com/go-rod/rod/lib/proto"
)

func decodeBody(res *proto.NetworkGetResponseBodyResult) []byte {
	if res == nil {
		return nil
	}
	if res.Base64Encoded {
		raw, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return []byte(res.Body)
		}
		return raw
	}
	return []byte(res.Body)
}
