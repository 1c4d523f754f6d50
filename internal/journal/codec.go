package journal

import (
	"github.com/fxamacker/cbor/v2"

	"dotmatrix/internal/alphabet"
)

// Contaminant lists are stored as deterministic CBOR so identical reports
// produce identical column bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeContaminants(cs []alphabet.Contaminant) ([]byte, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	return encMode.Marshal(cs)
}

func decodeContaminants(data []byte) ([]alphabet.Contaminant, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var cs []alphabet.Contaminant
	if err := decMode.Unmarshal(data, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}
