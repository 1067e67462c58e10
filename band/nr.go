package band

// nrTable is the NR-ARFCN allocation. Several entries overlap (n1/n65/n66/n256,
// n50/n75/n92/n94/n109, the duplicated n256 and n262 rows); evaluation order
// must stay as listed.
var nrTable = Table{
	{Min: 422000, Max: 434000, Band: 1},
	{Min: 386000, Max: 398000, Band: 2},
	{Min: 361000, Max: 376000, Band: 3},
	{Min: 173800, Max: 178800, Band: 5},
	{Min: 524000, Max: 538000, Band: 7},
	{Min: 185000, Max: 192000, Band: 8},
	{Min: 145800, Max: 149200, Band: 12},
	{Min: 149200, Max: 151200, Band: 13},
	{Min: 151600, Max: 153600, Band: 14},
	{Min: 172000, Max: 175000, Band: 18},
	{Min: 158200, Max: 164200, Band: 20},
	{Min: 305000, Max: 311800, Band: 24},
	{Min: 386000, Max: 399000, Band: 25},
	{Min: 171800, Max: 178800, Band: 26},
	{Min: 151600, Max: 160600, Band: 28},
	{Min: 143400, Max: 145600, Band: 29},
	{Min: 470000, Max: 472000, Band: 30},
	{Min: 92500, Max: 93500, Band: 31},
	{Min: 402000, Max: 405000, Band: 34},
	{Min: 514000, Max: 524000, Band: 38},
	{Min: 376000, Max: 384000, Band: 39},
	{Min: 460000, Max: 480000, Band: 40},
	{Min: 499200, Max: 537999, Band: 41},
	{Min: 743334, Max: 795000, Band: 46},
	{Min: 790334, Max: 795000, Band: 47},
	{Min: 636667, Max: 646666, Band: 48},
	{Min: 286400, Max: 303400, Band: 50},
	{Min: 285400, Max: 286400, Band: 51},
	{Min: 496700, Max: 499000, Band: 53},
	{Min: 334000, Max: 335000, Band: 54},
	{Min: 422000, Max: 440000, Band: 65},
	{Min: 422000, Max: 440000, Band: 66},
	{Min: 147600, Max: 151600, Band: 67},
	{Min: 399000, Max: 404000, Band: 70},
	{Min: 123400, Max: 130400, Band: 71},
	{Min: 92200, Max: 93200, Band: 72},
	{Min: 295000, Max: 303600, Band: 74},
	{Min: 286400, Max: 303400, Band: 75},
	{Min: 285400, Max: 286400, Band: 76},
	{Min: 620000, Max: 680000, Band: 77},
	{Min: 620000, Max: 653333, Band: 78},
	{Min: 693334, Max: 733333, Band: 79},
	{Min: 342000, Max: 357000, Band: 80},
	{Min: 176000, Max: 183000, Band: 81},
	{Min: 166400, Max: 172400, Band: 82},
	{Min: 140600, Max: 149600, Band: 83},
	{Min: 384000, Max: 396000, Band: 84},
	{Min: 145600, Max: 149200, Band: 85},
	{Min: 342000, Max: 356000, Band: 86},
	{Min: 164800, Max: 169800, Band: 89},
	{Min: 499200, Max: 538000, Band: 90},
	{Min: 285400, Max: 286400, Band: 91},
	{Min: 286400, Max: 303400, Band: 92},
	{Min: 285400, Max: 286400, Band: 93},
	{Min: 286400, Max: 303400, Band: 94},
	{Min: 402000, Max: 405000, Band: 95},
	{Min: 795000, Max: 875000, Band: 96},
	{Min: 460000, Max: 480000, Band: 97},
	{Min: 376000, Max: 384000, Band: 98},
	{Min: 325300, Max: 332100, Band: 99},
	{Min: 183880, Max: 185000, Band: 100},
	{Min: 380000, Max: 382000, Band: 101},
	{Min: 795000, Max: 828333, Band: 102},
	{Min: 828334, Max: 875000, Band: 104},
	{Min: 122400, Max: 130400, Band: 105},
	{Min: 187000, Max: 188000, Band: 106},
	{Min: 286400, Max: 303400, Band: 109},
	{Min: 434000, Max: 440000, Band: 256},
	{Min: 305000, Max: 311800, Band: 255},
	{Min: 496700, Max: 500000, Band: 254},
	{Min: 434000, Max: 440000, Band: 256},
	{Min: 2054166, Max: 2104165, Band: 257},
	{Min: 2016667, Max: 2070832, Band: 258},
	{Min: 2270833, Max: 2337499, Band: 259},
	{Min: 2229166, Max: 2279165, Band: 260},
	{Min: 2070833, Max: 2084999, Band: 261},
	{Min: 2399166, Max: 2415832, Band: 262},
	{Min: 2564083, Max: 2794243, Band: 262},
}

// NRBand returns the NR operating band number for an NR-ARFCN, or Unknown.
func NRBand(arfcn int) int {
	return nrTable.Lookup(arfcn)
}

// NRTable returns a copy of the NR-ARFCN table in evaluation order.
func NRTable() Table {
	return nrTable.clone()
}
