package xpath

import (
	"math"
	"time"
)

type BinaryFunc func(Sequence, Sequence) (Sequence, error)

var binaryOp = map[rune]BinaryFunc{
	opAdd: doAdd,
	opSub: doSub,
	opMul: doMul,
	opDiv: doDiv,
	opMod: doMod,
	opEq:  doEqual,
	opNe:  doNotEqual,
	opLt:  doLesser,
	opLe:  doLessEq,
	opGt:  doGreater,
	opGe:  doGreatEq,
}

func doAdd(left, right Sequence) (Sequence, error) {
	return apply(left, right, func(left, right float64) (float64, error) {
		return left + right, nil
	})
}

func doSub(left, right Sequence) (Sequence, error) {
	return apply(left, right, func(left, right float64) (float64, error) {
		return left - right, nil
	})
}

func doMul(left, right Sequence) (Sequence, error) {
	return apply(left, right, func(left, right float64) (float64, error) {
		return left * right, nil
	})
}

func doDiv(left, right Sequence) (Sequence, error) {
	return apply(left, right, func(left, right float64) (float64, error) {
		if right == 0 {
			return 0, ErrZero
		}
		return left / right, nil
	})
}

func doMod(left, right Sequence) (Sequence, error) {
	return apply(left, right, func(left, right float64) (float64, error) {
		if right == 0 {
			return 0, ErrZero
		}
		return math.Mod(left, right), nil
	})
}

func doEqual(left, right Sequence) (Sequence, error) {
	res, err := isEqual(left, right)
	if err != nil {
		return nil, err
	}
	return Singleton(res), nil
}

func doNotEqual(left, right Sequence) (Sequence, error) {
	res, err := isEqual(left, right)
	if err != nil {
		return nil, err
	}
	return Singleton(!res), nil
}

func doLesser(left, right Sequence) (Sequence, error) {
	res, err := compareItems(left, right, func(x, y float64) bool {
		return x < y
	}, func(x, y string) bool {
		return x < y
	})
	if err != nil {
		return nil, err
	}
	return Singleton(res), nil
}

func doLessEq(left, right Sequence) (Sequence, error) {
	res, err := compareItems(left, right, func(x, y float64) bool {
		return x <= y
	}, func(x, y string) bool {
		return x <= y
	})
	if err != nil {
		return nil, err
	}
	return Singleton(res), nil
}

func doGreater(left, right Sequence) (Sequence, error) {
	res, err := compareItems(left, right, func(x, y float64) bool {
		return x > y
	}, func(x, y string) bool {
		return x > y
	})
	if err != nil {
		return nil, err
	}
	return Singleton(res), nil
}

func doGreatEq(left, right Sequence) (Sequence, error) {
	res, err := compareItems(left, right, func(x, y float64) bool {
		return x >= y
	}, func(x, y string) bool {
		return x >= y
	})
	if err != nil {
		return nil, err
	}
	return Singleton(res), nil
}

func apply(left, right Sequence, do func(left, right float64) (float64, error)) (Sequence, error) {
	if left.Empty() || right.Empty() {
		return Singleton(math.NaN()), nil
	}
	x, err := toFloat(left[0].Value())
	if err != nil {
		return nil, err
	}
	y, err := toFloat(right[0].Value())
	if err != nil {
		return nil, err
	}
	v, err := do(x, y)
	if err != nil {
		return nil, err
	}
	return Singleton(v), nil
}

// isEqual implements general comparison: true when any pair from the
// two sequences compares equal.
func isEqual(left, right Sequence) (bool, error) {
	for i := range left {
		for j := range right {
			ok, err := equalItems(left[i], right[j])
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func equalItems(left, right Item) (bool, error) {
	switch x := atomize(left).(type) {
	case float64:
		y, err := toFloat(atomize(right))
		return nearlyEqual(x, y), err
	case bool:
		y, err := toBool(atomize(right))
		return x == y, err
	case time.Time:
		y, err := toTime(atomize(right))
		return x.Equal(y), err
	default:
		xs, err := toString(atomize(left))
		if err != nil {
			return false, err
		}
		ys, err := toString(atomize(right))
		if err != nil {
			return false, err
		}
		return xs == ys, nil
	}
}

func compareItems(left, right Sequence, nums func(x, y float64) bool, strs func(x, y string) bool) (bool, error) {
	for i := range left {
		for j := range right {
			var (
				lv = atomize(left[i])
				rv = atomize(right[j])
			)
			if _, ok := lv.(string); ok {
				if _, also := rv.(string); also {
					if strs(lv.(string), rv.(string)) {
						return true, nil
					}
					continue
				}
			}
			x, err := toFloat(lv)
			if err != nil {
				return false, err
			}
			y, err := toFloat(rv)
			if err != nil {
				return false, err
			}
			if nums(x, y) {
				return true, nil
			}
		}
	}
	return false, nil
}

// atomize reduces an item to its comparable value: nodes compare by
// string value.
func atomize(it Item) any {
	if it.Atomic() {
		return it.Value()
	}
	v, _ := it.Value().(string)
	return v
}

func nearlyEqual(left, right float64) bool {
	if left == right {
		return true
	}
	return math.Abs(left-right) < 0.000001
}
