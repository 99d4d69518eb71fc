package bundle

// Key names a dataset slot.
type Key string

const (
	X            Key = "X"
	Y            Key = "y"
	RowIDs       Key = "row_ids"
	XTrain       Key = "X_train"
	XTest        Key = "X_test"
	YTrain       Key = "y_train"
	YTest        Key = "y_test"
	TrainRowIDs  Key = "train_row_ids"
	TestRowIDs   Key = "test_row_ids"
	XTrainScaled Key = "X_train_scaled"
	XTestScaled  Key = "X_test_scaled"
	YTrainScaled Key = "y_train_scaled"
	YTestScaled  Key = "y_test_scaled"
	XFeatureDict Key = "X_feature_dict"
	YFeatureDict Key = "y_feature_dict"
)

// Kind is the value type stored under a key.
type Kind int

const (
	KindUnknown Kind = iota
	KindArray
	KindRowIDs
	KindFeatureDict
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindRowIDs:
		return "row_ids"
	case KindFeatureDict:
		return "feature_dict"
	default:
		return "unknown"
	}
}

var kinds = map[Key]Kind{
	X:            KindArray,
	Y:            KindArray,
	XTrain:       KindArray,
	XTest:        KindArray,
	YTrain:       KindArray,
	YTest:        KindArray,
	XTrainScaled: KindArray,
	XTestScaled:  KindArray,
	YTrainScaled: KindArray,
	YTestScaled:  KindArray,
	RowIDs:       KindRowIDs,
	TrainRowIDs:  KindRowIDs,
	TestRowIDs:   KindRowIDs,
	XFeatureDict: KindFeatureDict,
	YFeatureDict: KindFeatureDict,
}

// ArrayKeys lists the array slots in vocabulary order, as reported by Describe.
var ArrayKeys = []Key{X, Y, XTrain, XTest, YTrain, YTest, XTrainScaled, XTestScaled, YTrainScaled, YTestScaled}

// KindOf returns the slot kind for k, or KindUnknown outside the vocabulary.
func KindOf(k Key) Kind { return kinds[k] }

// ParseKey validates a dataset key name.
func ParseKey(s string) (Key, bool) {
	k := Key(s)
	_, ok := kinds[k]
	return k, ok
}
