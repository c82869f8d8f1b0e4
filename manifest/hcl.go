package manifest

import (
	"fmt"

	"github.com/GoCodeAlone/modhooks"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// decodeHCL reads a descriptor written as top-level HCL attributes. Blocks are
// not part of the format; expressions are evaluated without variables.
func decodeHCL(path string, data []byte) (map[string]any, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, diagnosticsError(path, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diagnosticsError(path, diags)
	}

	doc := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diagnosticsError(path, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, &ManifestError{
				Path:   path,
				Line:   attr.Range.Start.Line,
				Column: attr.Range.Start.Column,
				Err:    fmt.Errorf("%w: attribute %s: %v", modhooks.ErrMalformedManifest, name, err),
			}
		}
		doc[name] = native
	}
	return doc, nil
}

func diagnosticsError(path string, diags hcl.Diagnostics) error {
	mErr := &ManifestError{
		Path: path,
		Err:  fmt.Errorf("%w: %s", modhooks.ErrMalformedManifest, diags.Error()),
	}
	for _, d := range diags {
		if d.Severity == hcl.DiagError && d.Subject != nil {
			mErr.Line = d.Subject.Start.Line
			mErr.Column = d.Subject.Start.Column
			break
		}
	}
	return mErr
}

// ctyToNative converts an evaluated HCL value into plain Go values: string,
// float64, bool, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("number out of range: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return nil, err
		}
		return b, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out[key.AsString()] = native
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
