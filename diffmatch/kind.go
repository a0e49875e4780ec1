// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diffmatch

// Category groups DifferenceKind values into the seven buckets the
// classifier reports against.
type Category uint8

const (
	CategoryIncomparable Category = iota
	CategoryMissingFeatures
	CategoryMetadata
	CategoryErrorHandling
	CategoryConfiguration
	CategoryUpstreamQueries
	CategoryResolverSpecific
)

// Kind is a closed enum naming a known, benign class of difference
// between two resolvers' projections of the same FuzzCase. Every kind
// carries an interest_level ≥ 1 used by the fuzzing loop's score
// aggregation during scoring: rarer, more suspicious kinds get
// a higher multiplier so cases that only partially explain via common
// noise still surface.
type Kind uint8

const (
	ResolverName Kind = iota
	DnsId
	IncomparableCounters
	MetaDiff
	NonINRecursion
	CookiesUnsupported
	CookiesUncomparable
	TodoCacheIgnoredForNow
	ServFailOnWrongAuthnsAnswerType
	ServFailOnWrongAuthnsAnswerClass
	MaxTtlLimit
	FormErrOnTruncatedQuery
	ErrorClientNoRrInAnswer
	ClientQueryWithoutRdBit
	ExtendedErrorsUnsupported
	NoEdnsSupport
	MaradnsNoResponseServfail
	TrailingRetransmissions
	ErrorClientQueryIncomparableFuzzeeQueries
	Bind9NotImpMissingQuerySection
	MaradnsFakeSoaOnAAAA
	UnboundProbesUsingARecord
	PdnsCheckingDisabled
	MaradnsQueryClassNotIn
	PdnsEdnsClientBufsize
	Bind9_11EdnsClientBufsize
	Bind9_11EdnsServerBufsize
	UnboundFormErrCopiesAdAndAa
	RefusedCanBeServFail
	QnameMinimalization
	BindHsProhibited
	MaradnsNoRecursionDesired
	MaradnsEmbeddedZero
	BindErrorsHaveHardcodedValues
	PdnsRecursorsNonQueryNoResponse
	ResolvedServFailOnNoData
	Bind9_11ExtraNsRecord
	Bind9ExtraNsRecord
)

var kindNames = map[Kind]string{
	ResolverName:                               "ResolverName",
	DnsId:                                      "DnsId",
	IncomparableCounters:                       "IncomparableCounters",
	MetaDiff:                                   "MetaDiff",
	NonINRecursion:                             "NonINRecursion",
	CookiesUnsupported:                         "CookiesUnsupported",
	CookiesUncomparable:                        "CookiesUncomparable",
	TodoCacheIgnoredForNow:                     "TodoCacheIgnoredForNow",
	ServFailOnWrongAuthnsAnswerType:            "ServFailOnWrongAuthnsAnswerType",
	ServFailOnWrongAuthnsAnswerClass:           "ServFailOnWrongAuthnsAnswerClass",
	MaxTtlLimit:                                "MaxTtlLimit",
	FormErrOnTruncatedQuery:                    "FormErrOnTruncatedQuery",
	ErrorClientNoRrInAnswer:                    "ErrorClientNoRrInAnswer",
	ClientQueryWithoutRdBit:                    "ClientQueryWithoutRdBit",
	ExtendedErrorsUnsupported:                  "ExtendedErrorsUnsupported",
	NoEdnsSupport:                              "NoEdnsSupport",
	MaradnsNoResponseServfail:                  "MaradnsNoResponseServfail",
	TrailingRetransmissions:                    "TrailingRetransmissions",
	ErrorClientQueryIncomparableFuzzeeQueries:  "ErrorClientQueryIncomparableFuzzeeQueries",
	Bind9NotImpMissingQuerySection:             "Bind9NotImpMissingQuerySection",
	MaradnsFakeSoaOnAAAA:                       "MaradnsFakeSoaOnAAAA",
	UnboundProbesUsingARecord:                  "UnboundProbesUsingARecord",
	PdnsCheckingDisabled:                       "PdnsCheckingDisabled",
	MaradnsQueryClassNotIn:                     "MaradnsQueryClassNotIn",
	PdnsEdnsClientBufsize:                      "PdnsEdnsClientBufsize",
	Bind9_11EdnsClientBufsize:                  "Bind9_11EdnsClientBufsize",
	Bind9_11EdnsServerBufsize:                  "Bind9_11EdnsServerBufsize",
	UnboundFormErrCopiesAdAndAa:                "UnboundFormErrCopiesAdAndAa",
	RefusedCanBeServFail:                       "RefusedCanBeServFail",
	QnameMinimalization:                        "QnameMinimalization",
	BindHsProhibited:                           "BindHsProhibited",
	MaradnsNoRecursionDesired:                  "MaradnsNoRecursionDesired",
	MaradnsEmbeddedZero:                        "MaradnsEmbeddedZero",
	BindErrorsHaveHardcodedValues:              "BindErrorsHaveHardcodedValues",
	PdnsRecursorsNonQueryNoResponse:            "PdnsRecursorsNonQueryNoResponse",
	ResolvedServFailOnNoData:                   "ResolvedServFailOnNoData",
	Bind9_11ExtraNsRecord:                      "Bind9_11ExtraNsRecord",
	Bind9ExtraNsRecord:                         "Bind9ExtraNsRecord",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "UnknownKind"
}

var kindCategory = map[Kind]Category{
	ResolverName:                               CategoryMetadata,
	DnsId:                                      CategoryMetadata,
	IncomparableCounters:                       CategoryIncomparable,
	MetaDiff:                                   CategoryMetadata,
	NonINRecursion:                             CategoryConfiguration,
	CookiesUnsupported:                         CategoryMissingFeatures,
	CookiesUncomparable:                        CategoryIncomparable,
	TodoCacheIgnoredForNow:                     CategoryIncomparable,
	ServFailOnWrongAuthnsAnswerType:            CategoryErrorHandling,
	ServFailOnWrongAuthnsAnswerClass:           CategoryErrorHandling,
	MaxTtlLimit:                                CategoryResolverSpecific,
	FormErrOnTruncatedQuery:                    CategoryErrorHandling,
	ErrorClientNoRrInAnswer:                    CategoryErrorHandling,
	ClientQueryWithoutRdBit:                    CategoryConfiguration,
	ExtendedErrorsUnsupported:                  CategoryMissingFeatures,
	NoEdnsSupport:                              CategoryMissingFeatures,
	MaradnsNoResponseServfail:                  CategoryResolverSpecific,
	TrailingRetransmissions:                    CategoryUpstreamQueries,
	ErrorClientQueryIncomparableFuzzeeQueries:  CategoryUpstreamQueries,
	Bind9NotImpMissingQuerySection:             CategoryResolverSpecific,
	MaradnsFakeSoaOnAAAA:                       CategoryResolverSpecific,
	UnboundProbesUsingARecord:                  CategoryUpstreamQueries,
	PdnsCheckingDisabled:                       CategoryUpstreamQueries,
	MaradnsQueryClassNotIn:                     CategoryResolverSpecific,
	PdnsEdnsClientBufsize:                      CategoryConfiguration,
	Bind9_11EdnsClientBufsize:                  CategoryConfiguration,
	Bind9_11EdnsServerBufsize:                  CategoryConfiguration,
	UnboundFormErrCopiesAdAndAa:                CategoryResolverSpecific,
	RefusedCanBeServFail:                       CategoryErrorHandling,
	QnameMinimalization:                        CategoryUpstreamQueries,
	BindHsProhibited:                           CategoryResolverSpecific,
	MaradnsNoRecursionDesired:                  CategoryResolverSpecific,
	MaradnsEmbeddedZero:                        CategoryResolverSpecific,
	BindErrorsHaveHardcodedValues:              CategoryResolverSpecific,
	PdnsRecursorsNonQueryNoResponse:            CategoryResolverSpecific,
	ResolvedServFailOnNoData:                   CategoryResolverSpecific,
	Bind9_11ExtraNsRecord:                      CategoryResolverSpecific,
	Bind9ExtraNsRecord:                         CategoryResolverSpecific,
}

// Category reports which of the seven buckets k belongs to.
func (k Kind) Category() Category { return kindCategory[k] }

// interestLevel is the per-kind multiplier used by score aggregation.
// Resolver-specific quirks and upstream-query
// shape differences are the most interesting; pure metadata and
// known-incomparable fields are the least.
var interestLevel = map[Kind]int{
	ResolverName:                               1,
	DnsId:                                      1,
	IncomparableCounters:                       1,
	MetaDiff:                                   1,
	NonINRecursion:                             1,
	CookiesUnsupported:                         1,
	CookiesUncomparable:                        1,
	TodoCacheIgnoredForNow:                     1,
	ServFailOnWrongAuthnsAnswerType:            2,
	ServFailOnWrongAuthnsAnswerClass:           2,
	MaxTtlLimit:                                2,
	FormErrOnTruncatedQuery:                    2,
	ErrorClientNoRrInAnswer:                    2,
	ClientQueryWithoutRdBit:                    2,
	ExtendedErrorsUnsupported:                  1,
	NoEdnsSupport:                              1,
	MaradnsNoResponseServfail:                  2,
	TrailingRetransmissions:                    3,
	ErrorClientQueryIncomparableFuzzeeQueries:  2,
	Bind9NotImpMissingQuerySection:              2,
	MaradnsFakeSoaOnAAAA:                       3,
	UnboundProbesUsingARecord:                  2,
	PdnsCheckingDisabled:                       2,
	MaradnsQueryClassNotIn:                     2,
	PdnsEdnsClientBufsize:                      1,
	Bind9_11EdnsClientBufsize:                  1,
	Bind9_11EdnsServerBufsize:                  1,
	UnboundFormErrCopiesAdAndAa:                2,
	RefusedCanBeServFail:                       2,
	QnameMinimalization:                        3,
	BindHsProhibited:                           2,
	MaradnsNoRecursionDesired:                  2,
	MaradnsEmbeddedZero:                        2,
	BindErrorsHaveHardcodedValues:              2,
	PdnsRecursorsNonQueryNoResponse:            2,
	ResolvedServFailOnNoData:                   2,
	Bind9_11ExtraNsRecord:                      3,
	Bind9ExtraNsRecord:                         3,
}

// InterestLevel returns k's score-aggregation multiplier, defaulting
// to 1 for anything not explicitly tuned above.
func (k Kind) InterestLevel() int {
	if n, ok := interestLevel[k]; ok {
		return n
	}
	return 1
}
