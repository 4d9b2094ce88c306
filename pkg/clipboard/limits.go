package clipboard

import (
	"fmt"
	"unicode/utf8"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// ValidateContent checks that clipboard data is of a supported type, within
// maxSize bytes, and valid UTF-8 when it is text. A maxSize of zero or less
// means protocol.DefaultMaxItemSize.
func ValidateContent(data Data, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = protocol.DefaultMaxItemSize
	}

	if !protocol.IsSupportedDataType(string(data.Type)) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, data.Type)
	}

	if size := int64(len(data.Content)); size > maxSize {
		return fmt.Errorf("%w: %s (max: %s)",
			ErrContentTooLarge, protocol.FormatBytes(size), protocol.FormatBytes(maxSize))
	}

	if isText(data.Type) && !utf8.Valid(data.Content) {
		return ErrInvalidText
	}

	return nil
}

func isText(dataType protocol.DataType) bool {
	switch dataType {
	case protocol.DataTypePlainText, protocol.DataTypeHTML, protocol.DataTypeFilePaths:
		return true
	default:
		return false
	}
}
