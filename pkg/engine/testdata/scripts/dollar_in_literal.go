// expect: cost: $5
return "cost: $5"
