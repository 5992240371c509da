package domain

// Factorization maps each distinct value of a column to an integer code.
// Codes are assigned in order of first appearance.
type Factorization struct {
	Codes  []int          // one per input value
	Levels []string       // Levels[code] is the value for code
	Index  map[string]int // value -> code
}

// Factorize encodes values as integer codes. Equal values get equal codes.
func Factorize(values []string) Factorization {
	f := Factorization{
		Codes: make([]int, len(values)),
		Index: make(map[string]int),
	}
	for i, v := range values {
		code, ok := f.Index[v]
		if !ok {
			code = len(f.Levels)
			f.Index[v] = code
			f.Levels = append(f.Levels, v)
		}
		f.Codes[i] = code
	}
	return f
}
