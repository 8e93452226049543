package stream

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/metabridge/catalogd/internal/catalogerr"
)

func TestValidateProtoSchemaAbsent(t *testing.T) {
	if err := validateProtoSchema(map[string]string{"k": "v"}); err != nil {
		t.Fatalf("expected no error when protoSchema absent, got %v", err)
	}
}

func TestValidateProtoSchemaValid(t *testing.T) {
	props := map[string]string{ProtoSchemaProperty: `
syntax = "proto3";
message Event {
	string id = 1;
	int64 timestamp = 2;
}
`}
	if err := validateProtoSchema(props); err != nil {
		t.Fatalf("expected valid proto schema to pass, got %v", err)
	}
}

func TestValidateProtoSchemaInvalid(t *testing.T) {
	props := map[string]string{ProtoSchemaProperty: "this is not valid protobuf {{{"}
	err := validateProtoSchema(props)
	if !errors.Is(err, catalogerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
}

func TestValidateProtoSchemaTooManyMessageTypes(t *testing.T) {
	var src strings.Builder
	src.WriteString(`syntax = "proto3";` + "\n")
	for i := 0; i <= maxProtoMessageTypes; i++ {
		fmt.Fprintf(&src, "message M%d { string id = 1; }\n", i)
	}
	props := map[string]string{ProtoSchemaProperty: src.String()}
	err := validateProtoSchema(props)
	if !errors.Is(err, catalogerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for excess message types, got %v", err)
	}
}
