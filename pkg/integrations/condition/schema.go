package condition

// Rule kinds are written "<data type>.<comparison>", for example
// "string.contains" or "number.is_greater_than".

type ComparisonString string

const (
	ComparisonString_Exists            ComparisonString = "exists"
	ComparisonString_DoesNotExist      ComparisonString = "does_not_exist"
	ComparisonString_IsEmpty           ComparisonString = "is_empty"
	ComparisonString_IsNotEmpty        ComparisonString = "is_not_empty"
	ComparisonString_IsEqual           ComparisonString = "is_equal"
	ComparisonString_IsNotEqual        ComparisonString = "is_not_equal"
	ComparisonString_Contains          ComparisonString = "contains"
	ComparisonString_DoesNotContain    ComparisonString = "does_not_contain"
	ComparisonString_StartsWith        ComparisonString = "starts_with"
	ComparisonString_EndsWith          ComparisonString = "ends_with"
	ComparisonString_DoesNotStartWith  ComparisonString = "does_not_start_with"
	ComparisonString_DoesNotEndWith    ComparisonString = "does_not_end_with"
	ComparisonString_MatchesRegex      ComparisonString = "matches_regex"
	ComparisonString_DoesNotMatchRegex ComparisonString = "does_not_match_regex"
)

type ComparisonNumber string

const (
	ComparisonNumber_Exists               ComparisonNumber = "exists"
	ComparisonNumber_DoesNotExist         ComparisonNumber = "does_not_exist"
	ComparisonNumber_IsEqual              ComparisonNumber = "is_equal"
	ComparisonNumber_IsNotEqual           ComparisonNumber = "is_not_equal"
	ComparisonNumber_IsGreaterThan        ComparisonNumber = "is_greater_than"
	ComparisonNumber_IsLessThan           ComparisonNumber = "is_less_than"
	ComparisonNumber_IsGreaterThanOrEqual ComparisonNumber = "is_greater_than_or_equal"
	ComparisonNumber_IsLessThanOrEqual    ComparisonNumber = "is_less_than_or_equal"
)

type ComparisonBoolean string

const (
	ComparisonBoolean_Exists       ComparisonBoolean = "exists"
	ComparisonBoolean_DoesNotExist ComparisonBoolean = "does_not_exist"
	ComparisonBoolean_IsEqual      ComparisonBoolean = "is_equal"
	ComparisonBoolean_IsNotEqual   ComparisonBoolean = "is_not_equal"
	ComparisonBoolean_IsTrue       ComparisonBoolean = "is_true"
	ComparisonBoolean_IsFalse      ComparisonBoolean = "is_false"
)

type ComparisonDate string

const (
	ComparisonDate_Exists          ComparisonDate = "exists"
	ComparisonDate_DoesNotExist    ComparisonDate = "does_not_exist"
	ComparisonDate_IsEqual         ComparisonDate = "is_equal"
	ComparisonDate_IsNotEqual      ComparisonDate = "is_not_equal"
	ComparisonDate_IsAfter         ComparisonDate = "is_after"
	ComparisonDate_IsBefore        ComparisonDate = "is_before"
	ComparisonDate_IsAfterOrEqual  ComparisonDate = "is_after_or_equal"
	ComparisonDate_IsBeforeOrEqual ComparisonDate = "is_before_or_equal"
)

type ComparisonArray string

const (
	ComparisonArray_IsEmpty           ComparisonArray = "is_empty"
	ComparisonArray_IsNotEmpty        ComparisonArray = "is_not_empty"
	ComparisonArray_Contains          ComparisonArray = "contains"
	ComparisonArray_DoesNotContain    ComparisonArray = "does_not_contain"
	ComparisonArray_LengthEquals      ComparisonArray = "length_equals"
	ComparisonArray_LengthGreaterThan ComparisonArray = "length_greater_than"
	ComparisonArray_LengthLessThan    ComparisonArray = "length_less_than"
)

type Relation string

const (
	RelationAnd Relation = "and"
	RelationOr  Relation = "or"
)
