package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/invopop/jsonschema"
)

// reflectSchema derives the parameters schema of a tool's argument struct.
func reflectSchema(v any) ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	return schema.MarshalJSON()
}

// RegisterBuiltins installs the default server-side toolkit.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []Tool{
		&currentTimeTool{now: time.Now},
		&calculatorTool{},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Europe/Paris; defaults to UTC"`
}

// currentTimeTool reports the server's current time.
type currentTimeTool struct {
	now func() time.Time
}

func (t *currentTimeTool) Name() string { return "get_current_time" }

func (t *currentTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific timezone."
}

func (t *currentTimeTool) ParametersSchema() ([]byte, error) {
	return reflectSchema(&currentTimeArgs{})
}

func (t *currentTimeTool) Invoke(_ context.Context, arguments []byte) (string, error) {
	var args currentTimeArgs
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	loc := time.UTC
	if args.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(args.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", args.Timezone)
		}
	}
	return t.now().In(loc).Format(time.RFC3339), nil
}

type calculatorArgs struct {
	Operation string  `json:"operation" jsonschema:"required,enum=add,enum=subtract,enum=multiply,enum=divide,enum=power,description=Arithmetic operation to perform"`
	A         float64 `json:"a" jsonschema:"required,description=First operand"`
	B         float64 `json:"b" jsonschema:"required,description=Second operand"`
}

// calculatorTool evaluates a single binary arithmetic operation.
type calculatorTool struct{}

func (t *calculatorTool) Name() string { return "calculator" }

func (t *calculatorTool) Description() string {
	return "Perform basic arithmetic on two numbers."
}

func (t *calculatorTool) ParametersSchema() ([]byte, error) {
	return reflectSchema(&calculatorArgs{})
}

func (t *calculatorTool) Invoke(_ context.Context, arguments []byte) (string, error) {
	var args calculatorArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	var result float64
	switch args.Operation {
	case "add":
		result = args.A + args.B
	case "subtract":
		result = args.A - args.B
	case "multiply":
		result = args.A * args.B
	case "divide":
		if args.B == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = args.A / args.B
	case "power":
		result = math.Pow(args.A, args.B)
	default:
		return "", fmt.Errorf("unknown operation %q", args.Operation)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return "", fmt.Errorf("result is not a finite number")
	}
	return formatNumber(result), nil
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
