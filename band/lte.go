package band

// lteTable is the E-UTRA EARFCN allocation. Band 106 and 107 share 70656..70705;
// band 106 wins because it is listed first.
var lteTable = Table{
	{Min: 0, Max: 599, Band: 1},
	{Min: 600, Max: 1199, Band: 2},
	{Min: 1200, Max: 1949, Band: 3},
	{Min: 1950, Max: 2399, Band: 4},
	{Min: 2400, Max: 2649, Band: 5},
	{Min: 2650, Max: 2749, Band: 6},
	{Min: 2750, Max: 3449, Band: 7},
	{Min: 3450, Max: 3799, Band: 8},
	{Min: 3800, Max: 4149, Band: 9},
	{Min: 4150, Max: 4749, Band: 10},
	{Min: 4750, Max: 4949, Band: 11},
	{Min: 5010, Max: 5179, Band: 12},
	{Min: 5180, Max: 5279, Band: 13},
	{Min: 5280, Max: 5379, Band: 14},
	{Min: 5730, Max: 5849, Band: 17},
	{Min: 5850, Max: 5999, Band: 18},
	{Min: 6000, Max: 6149, Band: 19},
	{Min: 6150, Max: 6449, Band: 20},
	{Min: 6450, Max: 6599, Band: 21},
	{Min: 6600, Max: 7399, Band: 22},
	{Min: 7500, Max: 7699, Band: 23},
	{Min: 7700, Max: 8039, Band: 24},
	{Min: 8040, Max: 8689, Band: 25},
	{Min: 8690, Max: 9039, Band: 26},
	{Min: 9040, Max: 9209, Band: 27},
	{Min: 9210, Max: 9659, Band: 28},
	{Min: 9660, Max: 9769, Band: 29},
	{Min: 9770, Max: 9869, Band: 30},
	{Min: 9870, Max: 9919, Band: 31},
	{Min: 9920, Max: 10359, Band: 32},
	{Min: 36000, Max: 36199, Band: 33},
	{Min: 36200, Max: 36349, Band: 34},
	{Min: 36350, Max: 36949, Band: 35},
	{Min: 36950, Max: 37549, Band: 36},
	{Min: 37550, Max: 37749, Band: 37},
	{Min: 37750, Max: 38249, Band: 38},
	{Min: 38250, Max: 38649, Band: 39},
	{Min: 38650, Max: 39649, Band: 40},
	{Min: 39650, Max: 41589, Band: 41},
	{Min: 41590, Max: 43589, Band: 42},
	{Min: 43590, Max: 45589, Band: 43},
	{Min: 45590, Max: 46589, Band: 44},
	{Min: 46590, Max: 46789, Band: 45},
	{Min: 46790, Max: 54539, Band: 46},
	{Min: 54540, Max: 55239, Band: 47},
	{Min: 55240, Max: 56739, Band: 48},
	{Min: 56740, Max: 58239, Band: 49},
	{Min: 58240, Max: 59089, Band: 50},
	{Min: 59090, Max: 59139, Band: 51},
	{Min: 59140, Max: 60139, Band: 52},
	{Min: 60140, Max: 60254, Band: 53},
	{Min: 60255, Max: 60304, Band: 54},
	{Min: 65536, Max: 66435, Band: 65},
	{Min: 66436, Max: 67335, Band: 66},
	{Min: 67336, Max: 67535, Band: 67},
	{Min: 67536, Max: 67835, Band: 68},
	{Min: 67836, Max: 68335, Band: 69},
	{Min: 68336, Max: 68585, Band: 70},
	{Min: 68586, Max: 68935, Band: 71},
	{Min: 68936, Max: 68985, Band: 72},
	{Min: 68986, Max: 69035, Band: 73},
	{Min: 69036, Max: 69465, Band: 74},
	{Min: 69466, Max: 70315, Band: 75},
	{Min: 70316, Max: 70365, Band: 76},
	{Min: 70366, Max: 70545, Band: 85},
	{Min: 70546, Max: 70595, Band: 87},
	{Min: 70596, Max: 70645, Band: 88},
	{Min: 70646, Max: 70655, Band: 103},
	{Min: 70656, Max: 70705, Band: 106},
	{Min: 70656, Max: 71055, Band: 107},
	{Min: 71056, Max: 73335, Band: 108},
}

// LTEBand returns the E-UTRA band number for an EARFCN, or Unknown.
func LTEBand(earfcn int) int {
	return lteTable.Lookup(earfcn)
}

// LTETable returns a copy of the EARFCN table in evaluation order.
func LTETable() Table {
	return lteTable.clone()
}
